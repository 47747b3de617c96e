package pages

import (
	"strings"
	"time"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
)

const maxBlocks = 100

// PageInput is the admin-writable surface of a page.
type PageInput struct {
	Title       string              `json:"title" validate:"required,max=200"`
	Slug        string              `json:"slug" validate:"omitempty,max=200"`
	Layout      enums.PageLayout    `json:"layout"`
	SEO         models.SEO          `json:"seo"`
	Status      enums.PublishStatus `json:"status"`
	PublishedAt *time.Time          `json:"publishedAt"`
	Blocks      []models.Block      `json:"blocks"`
}

// ListInput pages the page index.
type ListInput struct {
	Limit  int
	Cursor string
}

type ListResult struct {
	Items  []models.Page `json:"items"`
	Cursor string        `json:"cursor,omitempty"`
}

func (in *PageInput) normalize() error {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if in.Layout == "" {
		in.Layout = enums.PageLayoutDefault
	}
	if !in.Layout.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid layout")
	}
	if in.Status == "" {
		in.Status = enums.PublishStatusDraft
	}
	if !in.Status.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid status")
	}
	if len(in.Blocks) > maxBlocks {
		return pkgerrors.New(pkgerrors.CodeValidation, "too many blocks")
	}
	for i, block := range in.Blocks {
		if strings.TrimSpace(string(block.Type)) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "block type is required").WithDetails(map[string]int{"index": i})
		}
	}
	if in.Blocks == nil {
		in.Blocks = []models.Block{}
	}
	return nil
}
