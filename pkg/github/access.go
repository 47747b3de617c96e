// Package github grants repository access to buyers of github_repo products.
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v75/github"

	"github.com/angelmondragon/digistore-backend/pkg/config"
)

// Grant describes one collaborator invitation. Token is the product's own credential.
type Grant struct {
	Owner      string
	Repo       string
	Username   string
	Permission string
	Token      string
}

func (g Grant) validate() error {
	var missing []string
	if strings.TrimSpace(g.Owner) == "" {
		missing = append(missing, "owner")
	}
	if strings.TrimSpace(g.Repo) == "" {
		missing = append(missing, "repo")
	}
	if strings.TrimSpace(g.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(g.Token) == "" {
		missing = append(missing, "token")
	}
	if len(missing) > 0 {
		return fmt.Errorf("repository grant missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Outcome reports what GitHub did with the request.
type Outcome struct {
	InvitationID int64
	// AlreadyCollaborator is set when GitHub answered 204 with no invitation.
	AlreadyCollaborator bool
}

type collaborators interface {
	AddCollaborator(ctx context.Context, owner, repo, user string, opts *github.RepositoryAddCollaboratorOptions) (*github.CollaboratorInvitation, *github.Response, error)
}

// Access invites users to repositories with per-grant tokens.
type Access struct {
	httpClient *http.Client
	baseURL    string
	newService func(token string) (collaborators, error)
}

// NewAccess builds an Access client; BaseURL selects a GitHub Enterprise host.
func NewAccess(cfg config.GitHubConfig) *Access {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	a := &Access{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimSpace(cfg.BaseURL),
	}
	a.newService = a.repositories
	return a
}

func (a *Access) repositories(token string) (collaborators, error) {
	client := github.NewClient(a.httpClient).WithAuthToken(token)
	if a.baseURL != "" {
		enterprise, err := client.WithEnterpriseURLs(a.baseURL, a.baseURL)
		if err != nil {
			return nil, fmt.Errorf("github base url: %w", err)
		}
		client = enterprise
	}
	return client.Repositories, nil
}

// Grant adds the user as a collaborator with the requested permission.
func (a *Access) Grant(ctx context.Context, grant Grant) (Outcome, error) {
	if err := grant.validate(); err != nil {
		return Outcome{}, err
	}
	svc, err := a.newService(grant.Token)
	if err != nil {
		return Outcome{}, err
	}

	opts := &github.RepositoryAddCollaboratorOptions{Permission: grant.Permission}
	if opts.Permission == "" {
		opts.Permission = "pull"
	}
	invitation, _, err := svc.AddCollaborator(ctx, grant.Owner, grant.Repo, grant.Username, opts)
	if err != nil {
		return Outcome{}, describe(err)
	}
	if invitation == nil {
		return Outcome{AlreadyCollaborator: true}, nil
	}
	return Outcome{InvitationID: invitation.GetID()}, nil
}

func describe(err error) error {
	var apiErr *github.ErrorResponse
	if errors.As(err, &apiErr) && apiErr.Response != nil {
		return fmt.Errorf("github add collaborator: %d %s", apiErr.Response.StatusCode, apiErr.Message)
	}
	return fmt.Errorf("github add collaborator: %w", err)
}
