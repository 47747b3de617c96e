package pages

import (
	"context"
	"html/template"
	"io"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/internal/access"
	product "github.com/angelmondragon/digistore-backend/internal/products"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
)

// GridSource supplies products for product_grid blocks.
type GridSource interface {
	GridProducts(ctx context.Context, ids []uuid.UUID, category string, limit int) ([]models.Product, error)
}

type catalogLister interface {
	List(ctx context.Context, actor *access.Actor, input product.ListInput) (*product.ListResult, error)
}

type productFinder interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
}

// CatalogGrid reads grid products from the catalog as an anonymous visitor.
type CatalogGrid struct {
	Catalog  catalogLister
	Products productFinder
}

func (g CatalogGrid) GridProducts(ctx context.Context, ids []uuid.UUID, category string, limit int) ([]models.Product, error) {
	if len(ids) > 0 {
		rows, err := g.Products.FindByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		byID := make(map[uuid.UUID]models.Product, len(rows))
		for _, row := range rows {
			byID[row.ID] = row
		}
		out := make([]models.Product, 0, len(ids))
		for _, id := range ids {
			if p, ok := byID[id]; ok && p.Status == enums.PublishStatusPublished {
				out = append(out, p)
			}
			if len(out) == limit {
				break
			}
		}
		return out, nil
	}
	result, err := g.Catalog.List(ctx, access.Anonymous(), product.ListInput{Category: category, Limit: limit})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

var layouts = template.Must(template.New("layouts").Parse(`
{{define "head"}}<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{if .SEO.MetaTitle}}{{.SEO.MetaTitle}}{{else}}{{.Title}}{{end}}</title>
{{if .SEO.MetaDescription}}<meta name="description" content="{{.SEO.MetaDescription}}">{{end}}
{{if .SEO.OGImage}}<meta property="og:image" content="{{.SEO.OGImage}}">{{end}}
</head>{{end}}
{{define "default"}}{{template "head" .}}
<body class="layout-default"><main class="container">{{range .Blocks}}{{.}}{{end}}</main></body>
</html>{{end}}
{{define "full_width"}}{{template "head" .}}
<body class="layout-full-width"><main>{{range .Blocks}}{{.}}{{end}}</main></body>
</html>{{end}}
{{define "sidebar"}}{{template "head" .}}
<body class="layout-sidebar"><div class="container with-sidebar"><main>{{range .Blocks}}{{.}}{{end}}</main><aside>{{range .Sidebar}}{{.}}{{end}}</aside></div></body>
</html>{{end}}
`))

type layoutView struct {
	Title   string
	SEO     models.SEO
	Blocks  []template.HTML
	Sidebar []template.HTML
}

// Renderer turns a page into a complete HTML document.
type Renderer struct {
	blocks map[enums.BlockType]BlockRenderer
	logg   *logger.Logger
}

func NewRenderer(blocks map[enums.BlockType]BlockRenderer, logg *logger.Logger) *Renderer {
	return &Renderer{blocks: blocks, logg: logg}
}

// Register adds or replaces the renderer for a block type.
func (r *Renderer) Register(kind enums.BlockType, fn BlockRenderer) {
	if r.blocks == nil {
		r.blocks = map[enums.BlockType]BlockRenderer{}
	}
	r.blocks[kind] = fn
}

// Render writes page into w. Blocks with no renderer, or whose renderer fails,
// are skipped with a warning and the rest of the page still renders.
func (r *Renderer) Render(ctx context.Context, w io.Writer, page *models.Page) error {
	view := layoutView{Title: page.Title, SEO: page.SEO.Data}
	for i, block := range page.Blocks.Data {
		fn, ok := r.blocks[block.Type]
		if !ok {
			r.warn(ctx, page, i, block.Type, "page.block_unknown_type", nil)
			continue
		}
		html, err := fn(ctx, block.Data)
		if err != nil {
			r.warn(ctx, page, i, block.Type, "page.block_render_failed", err)
			continue
		}
		// In the sidebar layout, call-to-action blocks move to the aside.
		if page.Layout == enums.PageLayoutSidebar && block.Type == enums.BlockTypeCallToAction {
			view.Sidebar = append(view.Sidebar, html)
			continue
		}
		view.Blocks = append(view.Blocks, html)
	}

	layout := string(page.Layout)
	if !page.Layout.IsValid() {
		layout = string(enums.PageLayoutDefault)
	}
	return layouts.ExecuteTemplate(w, layout, view)
}

func (r *Renderer) warn(ctx context.Context, page *models.Page, index int, kind enums.BlockType, msg string, err error) {
	if r.logg == nil {
		return
	}
	fields := map[string]any{"page_slug": page.Slug, "block_index": index, "block_type": string(kind)}
	if err != nil {
		fields["error"] = err.Error()
	}
	r.logg.Warn(r.logg.WithFields(ctx, fields), msg)
}
