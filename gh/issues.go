package gh

import (
	"context"
	"log"

	"github.com/google/go-github/v61/github"
	"github.com/pkg/errors"
)

// Issue is the slice of the created issue surfaced to callers and echoed
// in the intake response.
type Issue struct {
	Number  int    `json:"number"`
	URL     string `json:"url"`
	HTMLURL string `json:"htmlUrl"`
}

type CreateIssueInput struct {
	Repo   Repo
	Title  string
	Body   string
	Labels []string
}

type PutFileInput struct {
	Repo    Repo
	Branch  string
	Path    string
	Message string
	Content []byte
}

// Client exposes the two typed operations the intake pipeline needs.
type Client struct {
	gh  *github.Client
	log *log.Logger
}

// CreateIssue opens an issue. If the first attempt fails and labels were
// requested, exactly one fallback attempt is made without labels, since
// the labels may simply not exist in the target repository. The
// fallback's error wins when both fail.
func (c *Client) CreateIssue(ctx context.Context, in CreateIssueInput) (Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(in.Title),
		Body:  github.String(in.Body),
	}
	if len(in.Labels) > 0 {
		req.Labels = &in.Labels
	}

	iss, _, err := c.gh.Issues.Create(ctx, in.Repo.Owner, in.Repo.Name, req)
	if err != nil && len(in.Labels) > 0 {
		if c.log != nil {
			c.log.Printf("issue creation with labels %v failed (%v), retrying unlabeled", in.Labels, err)
		}
		req.Labels = nil
		iss, _, err = c.gh.Issues.Create(ctx, in.Repo.Owner, in.Repo.Name, req)
		if err != nil {
			return Issue{}, errors.Wrap(err, "create issue (no labels)")
		}
		return toIssue(iss), nil
	}
	if err != nil {
		return Issue{}, errors.Wrap(err, "create issue")
	}
	return toIssue(iss), nil
}

// PutFile writes content at path on branch in the target repository via
// the contents API. Path segments are percent-encoded by the underlying
// client.
func (c *Client) PutFile(ctx context.Context, in PutFileInput) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(in.Message),
		Content: in.Content,
		Branch:  github.String(in.Branch),
	}
	_, _, err := c.gh.Repositories.CreateFile(ctx, in.Repo.Owner, in.Repo.Name, in.Path, opts)
	if err != nil {
		return errors.Wrap(err, "put file "+in.Path)
	}
	return nil
}

func toIssue(iss *github.Issue) Issue {
	return Issue{
		Number:  iss.GetNumber(),
		URL:     iss.GetURL(),
		HTMLURL: iss.GetHTMLURL(),
	}
}
