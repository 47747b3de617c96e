package enums

import "slices"

// PublishStatus is shared by products and pages.
type PublishStatus string

const (
	PublishStatusDraft     PublishStatus = "draft"
	PublishStatusPublished PublishStatus = "published"
)

var validPublishStatuses = []PublishStatus{PublishStatusDraft, PublishStatusPublished}

func (s PublishStatus) IsValid() bool { return slices.Contains(validPublishStatuses, s) }

func ParsePublishStatus(value string) (PublishStatus, error) {
	return parse("publish status", validPublishStatuses, value)
}

// ProductType discriminates how a purchase is fulfilled.
type ProductType string

const (
	// ProductTypeDigitalDownload grants access through the download endpoint only.
	ProductTypeDigitalDownload ProductType = "digital_download"
	// ProductTypeGitHubRepo invites the buyer as a collaborator on a repository.
	ProductTypeGitHubRepo ProductType = "github_repo"
)

var validProductTypes = []ProductType{ProductTypeDigitalDownload, ProductTypeGitHubRepo}

func (t ProductType) IsValid() bool { return slices.Contains(validProductTypes, t) }

// RequiresExternalFulfillment reports whether a completed purchase triggers a remote action.
func (t ProductType) RequiresExternalFulfillment() bool {
	return t == ProductTypeGitHubRepo
}

func ParseProductType(value string) (ProductType, error) {
	return parse("product type", validProductTypes, value)
}

// RepoPermission is the collaborator permission granted on github_repo products.
type RepoPermission string

const (
	RepoPermissionPull     RepoPermission = "pull"
	RepoPermissionTriage   RepoPermission = "triage"
	RepoPermissionPush     RepoPermission = "push"
	RepoPermissionMaintain RepoPermission = "maintain"
)

var validRepoPermissions = []RepoPermission{RepoPermissionPull, RepoPermissionTriage, RepoPermissionPush, RepoPermissionMaintain}

func (p RepoPermission) IsValid() bool { return slices.Contains(validRepoPermissions, p) }
