package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/sirupsen/logrus"

	apperrors "github.com/rohankatakam/defectset/internal/errors"
)

const dateLayout = "2006-01-02"

// Repo is a local clone queried through the git executable.
type Repo struct {
	Dir    string
	URL    string
	cache  *QueryCache
	logger *logrus.Logger
}

// NewRepo creates a Repo rooted at dir. cache may be nil.
func NewRepo(dir, url string, cache *QueryCache, logger *logrus.Logger) *Repo {
	if logger == nil {
		logger = logrus.New()
	}
	return &Repo{
		Dir:    dir,
		URL:    url,
		cache:  cache,
		logger: logger,
	}
}

// Sync clones the repository when Dir does not hold one yet, otherwise
// fetches new commits and tags from origin.
func (r *Repo) Sync(ctx context.Context) error {
	repo, err := gogit.PlainOpen(r.Dir)
	if errors.Is(err, gogit.ErrRepositoryNotExists) {
		if r.URL == "" {
			return apperrors.FetchFailuref(err, "no repository at %s and no clone URL", r.Dir)
		}
		r.logger.WithFields(logrus.Fields{"url": r.URL, "dir": r.Dir}).Info("Cloning repository")
		if err := os.MkdirAll(filepath.Dir(r.Dir), 0755); err != nil {
			return apperrors.FetchFailure(err, "create clone directory")
		}
		_, err = gogit.PlainCloneContext(ctx, r.Dir, false, &gogit.CloneOptions{
			URL:  r.URL,
			Tags: gogit.AllTags,
		})
		if err != nil {
			return apperrors.FetchFailuref(err, "clone %s", r.URL)
		}
		return nil
	}
	if err != nil {
		return apperrors.FetchFailuref(err, "open repository %s", r.Dir)
	}

	r.logger.WithField("dir", r.Dir).Info("Fetching repository updates")
	err = repo.FetchContext(ctx, &gogit.FetchOptions{Tags: gogit.AllTags})
	if err != nil && !errors.Is(err, gogit.NoErrAlreadyUpToDate) {
		return apperrors.FetchFailuref(err, "fetch %s", r.Dir)
	}
	return nil
}

func (r *Repo) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.Dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return "", fmt.Errorf("git %s: %w (stderr: %s)", args[0], err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return string(output), nil
}

// Files lists the paths with the given extension at the checked-out revision.
func (r *Repo) Files(ctx context.Context, extension string) ([]string, error) {
	output, err := r.run(ctx, "ls-files")
	if err != nil {
		return nil, apperrors.FetchFailure(err, "list files")
	}

	var files []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && strings.HasSuffix(line, extension) {
			files = append(files, line)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Log returns the numstat log of from..to in the header format the Parser
// expects. An empty from logs all history reachable from to.
func (r *Repo) Log(ctx context.Context, from, to string) (string, error) {
	revision := to
	if from != "" {
		revision = from + ".." + to
	}

	output, err := r.run(ctx, "log", "--numstat", "--no-renames",
		"--pretty=format:"+LogFormat, revision, "--")
	if err != nil {
		return "", apperrors.FetchFailuref(err, "log %s", revision)
	}
	return output, nil
}

// TagDate returns the commit date of the commit a tag points to.
// A tag that does not exist yields the zero time and no error.
func (r *Repo) TagDate(ctx context.Context, tag string) (time.Time, error) {
	key := "tag:" + tag
	if date, ok := r.cachedDate(key); ok {
		return date, nil
	}

	output, err := r.run(ctx, "log", "-1", "--format=%cs", tag, "--")
	if err != nil {
		r.logger.WithFields(logrus.Fields{"tag": tag, "error": err}).Debug("Tag not found")
		return time.Time{}, nil
	}

	date, err := parseDate(firstLine(output))
	if err != nil {
		return time.Time{}, nil
	}
	r.storeDate(key, date)
	return date, nil
}

// FileCreationDate returns the date of the commit that added path,
// following renames. When the rename-aware query finds nothing, the first
// commit touching the path is used instead.
func (r *Repo) FileCreationDate(ctx context.Context, path string) (time.Time, error) {
	key := "created:" + path
	if date, ok := r.cachedDate(key); ok {
		return date, nil
	}

	output, err := r.run(ctx, "log", "--diff-filter=A", "--follow", "--format=%cs", "--", path)
	if err != nil {
		return time.Time{}, apperrors.FetchFailuref(err, "creation date of %s", path)
	}
	raw := lastLine(output)

	if raw == "" {
		output, err = r.run(ctx, "log", "--reverse", "--format=%cs", "--", path)
		if err != nil {
			return time.Time{}, apperrors.FetchFailuref(err, "first commit of %s", path)
		}
		raw = firstLine(output)
	}

	if raw == "" {
		r.logger.WithField("path", path).Warn("No commit found for file, age will be 0")
		return time.Time{}, nil
	}

	date, err := parseDate(raw)
	if err != nil {
		return time.Time{}, apperrors.FetchFailuref(err, "creation date of %s", path)
	}
	r.storeDate(key, date)
	return date, nil
}

// Checkout forces the working tree to ref.
func (r *Repo) Checkout(ctx context.Context, ref string) error {
	if _, err := r.run(ctx, "checkout", "--force", "--quiet", ref); err != nil {
		return apperrors.FetchFailuref(err, "checkout %s", ref)
	}
	return nil
}

// LOC counts the lines of each path in the working tree.
func (r *Repo) LOC(ctx context.Context, paths []string) (map[string]int64, error) {
	return CountLOC(r.Dir, paths)
}

func (r *Repo) cachedDate(key string) (time.Time, bool) {
	if r.cache == nil {
		return time.Time{}, false
	}
	var raw string
	ok, err := r.cache.Get(key, &raw)
	if err != nil || !ok {
		return time.Time{}, false
	}
	date, err := parseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

func (r *Repo) storeDate(key string, date time.Time) {
	if r.cache == nil {
		return
	}
	if err := r.cache.Put(key, date.Format(dateLayout)); err != nil {
		r.logger.WithError(err).Warn("Failed to cache git query")
	}
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, strings.TrimSpace(s))
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
