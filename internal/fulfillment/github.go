package fulfillment

import (
	"context"
	"errors"
	"strings"

	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/github"
)

type repoGranter interface {
	Grant(ctx context.Context, grant github.Grant) (github.Outcome, error)
}

// GitHubFulfiller invites the buyer as a collaborator on the product's repository.
type GitHubFulfiller struct {
	access repoGranter
}

func NewGitHubFulfiller(access repoGranter) *GitHubFulfiller {
	return &GitHubFulfiller{access: access}
}

var errMissingUsername = errors.New("buyer did not provide a GitHub username")

func (f *GitHubFulfiller) Fulfill(ctx context.Context, req Request) error {
	if req.Transaction.GitHubUsername == nil || strings.TrimSpace(*req.Transaction.GitHubUsername) == "" {
		return errMissingUsername
	}
	p := req.Product
	grant := github.Grant{
		Username: strings.TrimSpace(*req.Transaction.GitHubUsername),
	}
	if p.RepoOwner != nil {
		grant.Owner = *p.RepoOwner
	}
	if p.RepoName != nil {
		grant.Repo = *p.RepoName
	}
	if p.RepoToken != nil {
		grant.Token = *p.RepoToken
	}
	grant.Permission = string(enums.RepoPermissionPull)
	if p.RepoPermission != nil {
		grant.Permission = string(*p.RepoPermission)
	}
	_, err := f.access.Grant(ctx, grant)
	return err
}
