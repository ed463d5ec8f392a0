package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/rohankatakam/defectset/internal/errors"
)

// ValidationResult holds validation results
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

// AddError adds an error to the validation result
func (vr *ValidationResult) AddError(format string, args ...interface{}) {
	vr.Valid = false
	vr.Errors = append(vr.Errors, fmt.Sprintf(format, args...))
}

// AddWarning adds a warning to the validation result
func (vr *ValidationResult) AddWarning(format string, args ...interface{}) {
	vr.Warnings = append(vr.Warnings, fmt.Sprintf(format, args...))
}

// HasErrors returns true if there are any errors
func (vr *ValidationResult) HasErrors() bool {
	return !vr.Valid || len(vr.Errors) > 0
}

// Error returns a formatted error message
func (vr *ValidationResult) Error() string {
	if !vr.HasErrors() {
		return ""
	}

	var sb strings.Builder
	sb.WriteString("Configuration validation failed:\n")
	for _, err := range vr.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err))
	}

	if len(vr.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, warn := range vr.Warnings {
			sb.WriteString(fmt.Sprintf("  - %s\n", warn))
		}
	}

	return sb.String()
}

// Validate checks the settings a build depends on
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{Valid: true}

	c.validateStorage(result)
	c.validateTracker(result)
	c.validateBuild(result)
	c.validateProjects(result)

	return result
}

// ValidateOrError returns a config error when validation fails
func (c *Config) ValidateOrError() error {
	result := c.Validate()
	if result.HasErrors() {
		return errors.ConfigErrorf("%s", strings.TrimSpace(result.Error()))
	}
	return nil
}

func (c *Config) validateStorage(result *ValidationResult) {
	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.LocalPath == "" {
			result.AddError("storage.local_path is required for sqlite storage")
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			result.AddError("storage.postgres_dsn is required for postgres storage")
		}
	case "none":
	default:
		result.AddError("storage.type must be sqlite, postgres or none (got %q)", c.Storage.Type)
	}
}

func (c *Config) validateTracker(result *ValidationResult) {
	u, err := url.Parse(c.Tracker.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		result.AddError("tracker.base_url is not a valid URL: %q", c.Tracker.BaseURL)
	}
	if c.Tracker.RateLimit <= 0 {
		result.AddError("tracker.rate_limit must be positive")
	}
	if c.Tracker.PageSize <= 0 {
		result.AddWarning("tracker.page_size is not positive, the client default will be used")
	}
}

func (c *Config) validateBuild(result *ValidationResult) {
	if c.Build.WorkDir == "" {
		result.AddError("build.work_dir is required")
	}
	if c.Build.OutputDir == "" {
		result.AddError("build.output_dir is required")
	}
	if c.Build.Parallelism < 1 {
		result.AddError("build.parallelism must be at least 1")
	}
}

func (c *Config) validateProjects(result *ValidationResult) {
	if len(c.Projects) == 0 {
		result.AddError("no projects configured")
		return
	}

	seen := make(map[string]bool, len(c.Projects))
	for i, p := range c.Projects {
		label := p.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i+1)
			result.AddError("project %s has no name", label)
		} else if seen[p.Name] {
			result.AddError("project %s is configured twice", label)
		}
		seen[p.Name] = true

		if p.URL == "" {
			result.AddWarning("project %s has no url, an existing clone is required", label)
		}
		if !strings.Contains(p.TagTemplate, VersionPlaceholder) {
			result.AddError("project %s: tag_template must contain %s", label, VersionPlaceholder)
		}
		if p.MovingWindow <= 0 || p.MovingWindow > 1 {
			result.AddError("project %s: moving_window must be in (0, 1]", label)
		}
		if p.MainFraction <= 0 || p.MainFraction > 1 {
			result.AddError("project %s: main_fraction must be in (0, 1]", label)
		}
		if !strings.HasPrefix(p.Extension, ".") {
			result.AddError("project %s: extension must start with a dot", label)
		}
	}
}
