package git

import (
	"strconv"
	"strings"

	"github.com/hashicorp/go-set/v2"
)

const (
	// SentinelMarker starts the header line of every commit in the log.
	SentinelMarker = "\x1e"
	// FieldSeparator splits hash, author and subject on the header line.
	FieldSeparator = "\x1f"

	// LogFormat is the --pretty format producing header lines.
	LogFormat = "%x1e%H%x1f%an%x1f%s"
)

// Commit is a parsed log entry restricted to tracked files.
type Commit struct {
	Hash    string
	Author  string
	Subject string
	Files   []string
}

// Touches reports whether the commit changed path
func (c *Commit) Touches(path string) bool {
	for _, f := range c.Files {
		if f == path {
			return true
		}
	}
	return false
}

// Accumulator receives one call per (tracked file, commit) pair.
type Accumulator interface {
	Update(path, author string, changeSetSize, locAdded, locDeleted int)
}

// Parser turns raw log text into commits.
// With a nil Metrics accumulator only commits and file lists are built,
// which is how releases outside the training horizon are read.
type Parser struct {
	Extension string
	Metrics   Accumulator
}

// ParseResult holds the accepted commits and the number of lines skipped
// because they did not have the expected shape.
type ParseResult struct {
	Commits []*Commit
	Skipped int
}

// LineKind classifies one line of log text.
type LineKind int

const (
	BlankLine LineKind = iota
	SentinelLine
	StatLine
	OtherLine
)

type line struct {
	kind LineKind
	raw  string

	// sentinel
	fields []string

	// stat
	added, deleted string
	path           string
	binary         bool
}

type parserState int

const (
	noOpenCommit parserState = iota
	commitOpen
)

// classifyLine tokenizes a single log line.
func classifyLine(raw string) line {
	trimmed := strings.TrimRight(raw, "\r")
	if strings.TrimSpace(trimmed) == "" {
		return line{kind: BlankLine, raw: raw}
	}

	if strings.HasPrefix(trimmed, SentinelMarker) {
		return line{
			kind:   SentinelLine,
			raw:    raw,
			fields: strings.SplitN(strings.TrimPrefix(trimmed, SentinelMarker), FieldSeparator, 3),
		}
	}

	parts := strings.SplitN(trimmed, "\t", 3)
	if len(parts) != 3 || parts[2] == "" {
		return line{kind: OtherLine, raw: raw}
	}

	l := line{
		kind:    StatLine,
		raw:     raw,
		added:   parts[0],
		deleted: parts[1],
		path:    normalizeRenamePath(parts[2]),
	}
	if l.added == "-" && l.deleted == "-" {
		l.binary = true
	} else if !isDigits(l.added) || !isDigits(l.deleted) {
		return line{kind: OtherLine, raw: raw}
	}
	return l
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// normalizeRenamePath resolves numstat rename notation to the new path:
// "src/{old => new}/A.java" and "old/A.java => new/A.java".
func normalizeRenamePath(p string) string {
	if !strings.Contains(p, " => ") {
		return p
	}

	open := strings.Index(p, "{")
	closing := strings.LastIndex(p, "}")
	if open >= 0 && closing > open {
		inner := p[open+1 : closing]
		arrow := strings.Index(inner, " => ")
		if arrow < 0 {
			return p
		}
		result := p[:open] + inner[arrow+len(" => "):] + p[closing+1:]
		return strings.ReplaceAll(result, "//", "/")
	}

	return p[strings.Index(p, " => ")+len(" => "):]
}

type pendingCommit struct {
	hash, author, subject string
	changeSetSize         int
	files                 []string
	seen                  *set.Set[string]
}

// Parse runs a single forward pass over text.
func (p *Parser) Parse(text string) *ParseResult {
	result := &ParseResult{}
	lines := tokenize(text)

	state := noOpenCommit
	var open *pendingCommit
	// skipping is set after a malformed header: its stat lines belong to
	// no commit and are ignored until the next header.
	skipping := false

	closeOpen := func() {
		if open != nil && len(open.files) > 0 {
			result.Commits = append(result.Commits, &Commit{
				Hash:    open.hash,
				Author:  open.author,
				Subject: open.subject,
				Files:   open.files,
			})
		}
		open = nil
		state = noOpenCommit
	}

	for i, l := range lines {
		switch l.kind {
		case BlankLine:
			continue

		case SentinelLine:
			closeOpen()
			if len(l.fields) < 3 {
				result.Skipped++
				skipping = true
				continue
			}
			skipping = false
			open = &pendingCommit{
				hash:          l.fields[0],
				author:        l.fields[1],
				subject:       l.fields[2],
				changeSetSize: countStatLines(lines[i+1:]) - 1,
				seen:          set.New[string](8),
			}
			state = commitOpen

		case StatLine:
			if state != commitOpen {
				if !skipping {
					result.Skipped++
				}
				continue
			}
			if !strings.HasSuffix(l.path, p.Extension) {
				continue
			}
			if l.binary {
				result.Skipped++
				continue
			}
			added, errA := strconv.Atoi(l.added)
			deleted, errD := strconv.Atoi(l.deleted)
			if errA != nil || errD != nil {
				result.Skipped++
				continue
			}
			if open.seen.Insert(l.path) {
				open.files = append(open.files, l.path)
			}
			if p.Metrics != nil {
				p.Metrics.Update(l.path, open.author, open.changeSetSize, added, deleted)
			}

		case OtherLine:
			result.Skipped++
		}
	}

	closeOpen()
	return result
}

// countStatLines counts stat lines up to the next header.
func countStatLines(rest []line) int {
	n := 0
	for _, l := range rest {
		if l.kind == SentinelLine {
			break
		}
		if l.kind == StatLine {
			n++
		}
	}
	return n
}

func tokenize(text string) []line {
	if text == "" {
		return nil
	}
	raw := strings.Split(text, "\n")
	lines := make([]line, 0, len(raw))
	for _, r := range raw {
		lines = append(lines, classifyLine(r))
	}
	return lines
}
