package release

import (
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

// NumericPrefix extracts the first maximal run of digits and dots from name,
// without trailing dots. "release-4.0.0-M1" yields "4.0.0".
func NumericPrefix(name string) (string, bool) {
	start := strings.IndexFunc(name, isDigit)
	if start < 0 {
		return "", false
	}

	end := start
	for end < len(name) && (isDigit(rune(name[end])) || name[end] == '.') {
		end++
	}

	prefix := strings.TrimRight(name[start:end], ".")
	return prefix, prefix != ""
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

// CompareVersions compares dot-separated numeric versions field by field.
// When the common fields are equal the longer version is higher, so
// "2.0" < "2.0.0". It returns -1, 0 or 1.
func CompareVersions(a, b string) int {
	fa := strings.Split(a, ".")
	fb := strings.Split(b, ".")

	n := min(len(fa), len(fb))
	for i := 0; i < n; i++ {
		va, vb := field(fa[i]), field(fb[i])
		if va < vb {
			return -1
		}
		if va > vb {
			return 1
		}
	}

	switch {
	case len(fa) < len(fb):
		return -1
	case len(fa) > len(fb):
		return 1
	default:
		return 0
	}
}

// field parses one version field; empty or oversized fields count as 0.
func field(s string) int64 {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// FilterBackwardCompatible drops maintenance releases published after a
// higher version line. Input must already be ordered by git date. A release
// is kept only when its numeric prefix is strictly higher than the previous
// kept release's prefix; releases without a numeric prefix are dropped too.
func FilterBackwardCompatible(releases []*Release, logger *logrus.Logger) []*Release {
	if logger == nil {
		logger = logrus.New()
	}

	kept := make([]*Release, 0, len(releases))
	last := ""
	for _, r := range releases {
		prefix, ok := NumericPrefix(r.Name)
		if !ok {
			logger.WithField("release", r.Name).Warn("Dropping release without numeric version")
			continue
		}
		if last != "" && CompareVersions(prefix, last) <= 0 {
			logger.WithFields(logrus.Fields{
				"release":  r.Name,
				"previous": last,
			}).Warn("Dropping backward compatibility release")
			continue
		}
		kept = append(kept, r)
		last = prefix
	}
	return kept
}
