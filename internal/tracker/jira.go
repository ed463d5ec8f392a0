package tracker

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	jira "github.com/andygrunwald/go-jira"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	apperrors "github.com/rohankatakam/defectset/internal/errors"
)

const (
	// DefaultBaseURL is the Apache Software Foundation JIRA.
	DefaultBaseURL = "https://issues.apache.org/jira"
	// DefaultPageSize matches the largest page JIRA serves.
	DefaultPageSize = 1000
)

var bugFields = []string{"key", "resolutiondate", "versions", "created"}

// JiraClient queries the JIRA REST API v2 with rate limiting.
type JiraClient struct {
	BaseURL  string
	PageSize int

	client      *jira.Client
	rateLimiter *rate.Limiter
	logger      *logrus.Logger
}

// NewJiraClient creates a client allowing requestsPerSecond calls.
func NewJiraClient(baseURL string, requestsPerSecond float64, logger *logrus.Logger) (*JiraClient, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	if logger == nil {
		logger = logrus.New()
	}

	client, err := jira.NewClient(&http.Client{Timeout: 60 * time.Second}, baseURL)
	if err != nil {
		return nil, apperrors.ConfigErrorf("invalid tracker URL %q: %v", baseURL, err)
	}

	return &JiraClient{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		PageSize:    DefaultPageSize,
		client:      client,
		rateLimiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		logger:      logger,
	}, nil
}

// BugQuery is the JQL selecting closed or resolved, fixed bugs of project.
func BugQuery(project string) string {
	return fmt.Sprintf(`project="%s" AND issueType="Bug" AND (status="closed" OR status="resolved") AND resolution="fixed"`,
		strings.ToUpper(project))
}

// Bugs pages through every fixed bug of project.
func (c *JiraClient) Bugs(ctx context.Context, project string) ([]Issue, error) {
	pageSize := c.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var issues []Issue
	startAt := 0
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}

		page, resp, err := c.client.Issue.SearchWithContext(ctx, BugQuery(project), &jira.SearchOptions{
			StartAt:    startAt,
			MaxResults: pageSize,
			Fields:     bugFields,
		})
		if err != nil {
			return nil, apperrors.FetchFailuref(err, "search bugs of %s at %d", project, startAt)
		}

		for _, raw := range page {
			issues = append(issues, convertIssue(raw))
		}

		startAt += len(page)
		c.logger.WithFields(logrus.Fields{
			"project": project,
			"fetched": startAt,
			"total":   resp.Total,
		}).Debug("Fetched bug page")

		if len(page) == 0 || startAt >= resp.Total {
			break
		}
	}

	return issues, nil
}

func convertIssue(raw jira.Issue) Issue {
	issue := Issue{Key: raw.Key}
	if raw.Fields == nil {
		return issue
	}
	issue.Created = time.Time(raw.Fields.Created)
	issue.Resolved = time.Time(raw.Fields.Resolutiondate)
	for _, v := range raw.Fields.AffectsVersions {
		if v != nil {
			issue.Versions = append(issue.Versions, v.Name)
		}
	}
	return issue
}

// Versions lists the dated versions of project.
func (c *JiraClient) Versions(ctx context.Context, project string) ([]Version, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}

	p, _, err := c.client.Project.GetWithContext(ctx, strings.ToUpper(project))
	if err != nil {
		return nil, apperrors.FetchFailuref(err, "get project %s", project)
	}

	versions := make([]Version, 0, len(p.Versions))
	for i, v := range p.Versions {
		released := lo.FromPtr(v.Released)
		if v.ReleaseDate == "" {
			if released {
				c.logger.WithFields(logrus.Fields{"project": project, "index": i}).
					Error("Released version has no release date")
			}
			continue
		}
		if v.Name == "" {
			c.logger.WithFields(logrus.Fields{"project": project, "release_date": v.ReleaseDate}).
				Error("Version has no name")
			continue
		}

		date, err := time.Parse(DateLayout, v.ReleaseDate)
		if err != nil {
			return nil, apperrors.FetchFailuref(err, "decode release date of %s", v.Name)
		}
		versions = append(versions, Version{
			Name:        v.Name,
			ReleaseDate: date,
			Released:    released,
		})
	}
	return versions, nil
}

func (c *JiraClient) wait(ctx context.Context) error {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return apperrors.FetchFailure(err, "rate limiter")
	}
	return nil
}
