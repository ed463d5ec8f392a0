package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByType(t *testing.T) {
	err := FetchFailure(fmt.Errorf("connection refused"), "fetch versions")
	wrapped := fmt.Errorf("build syncope: %w", err)

	assert.True(t, stderrors.Is(wrapped, ErrFetch))
	assert.False(t, stderrors.Is(wrapped, ErrParse))
	assert.Equal(t, "fetch versions: connection refused", err.Error())
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"fetch failure", FetchFailure(fmt.Errorf("x"), "jira"), true},
		{"parse ambiguity", ParseAmbiguityf("bad line %q", "abc"), false},
		{"unknown release", UnknownReleasef("no tag for %s", "1.0"), false},
		{"unresolvable bug", UnresolvableBugf("no commit for %s", "SYNCOPE-1"), false},
		{"foreign error", fmt.Errorf("boom"), true},
		{"wrapped fetch", fmt.Errorf("outer: %w", FetchFailure(fmt.Errorf("x"), "git")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrorTypeUnknownRelease, GetType(UnknownReleasef("x")))
	assert.Equal(t, ErrorTypeInternal, GetType(fmt.Errorf("plain")))
	assert.Equal(t, ErrorTypeInternal, GetType(nil))
	assert.Equal(t, "STORAGE", GetType(fmt.Errorf("save: %w", StorageError(fmt.Errorf("x"), "rows"))).String())
}

func TestDetailedString(t *testing.T) {
	err := StorageError(fmt.Errorf("disk full"), "save rows").WithContext("project", "syncope")
	s := err.DetailedString()

	assert.Contains(t, s, "[HIGH] [STORAGE] save rows")
	assert.Contains(t, s, "Caused by: disk full")
	assert.Contains(t, s, "project: syncope")
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeFetch, SeverityHigh, "nothing"))
}
