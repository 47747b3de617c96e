// Package seed imports reference data (categories, technologies, CMS pages)
// from a YAML fixture file. Rows are keyed by slug and existing rows are left
// untouched, so the import can be re-run against a live database.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	product "github.com/angelmondragon/digistore-backend/internal/products"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/digistore-backend/pkg/db/types"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

type Fixtures struct {
	Categories   []Term `yaml:"categories"`
	Technologies []Term `yaml:"technologies"`
	Pages        []Page `yaml:"pages"`
}

type Term struct {
	Name string `yaml:"name"`
	Slug string `yaml:"slug"`
}

type Page struct {
	Title     string           `yaml:"title"`
	Slug      string           `yaml:"slug"`
	Layout    enums.PageLayout `yaml:"layout"`
	Published bool             `yaml:"published"`
	SEO       models.SEO       `yaml:"seo"`
	Blocks    []Block          `yaml:"blocks"`
}

type Block struct {
	Type enums.BlockType `yaml:"type"`
	Data map[string]any  `yaml:"data"`
}

// Result counts inserted rows; slugs already present are skipped.
type Result struct {
	Categories   int
	Technologies int
	Pages        int
}

func LoadFile(path string) (*Fixtures, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Fixtures, error) {
	var fx Fixtures
	if err := yaml.Unmarshal(raw, &fx); err != nil {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	for i := range fx.Categories {
		if err := fx.Categories[i].normalize(); err != nil {
			return nil, fmt.Errorf("category %d: %w", i, err)
		}
	}
	for i := range fx.Technologies {
		if err := fx.Technologies[i].normalize(); err != nil {
			return nil, fmt.Errorf("technology %d: %w", i, err)
		}
	}
	for i := range fx.Pages {
		if err := fx.Pages[i].normalize(); err != nil {
			return nil, fmt.Errorf("page %q: %w", fx.Pages[i].Slug, err)
		}
	}
	return &fx, nil
}

func (t *Term) normalize() error {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return fmt.Errorf("name is required")
	}
	if t.Slug == "" {
		t.Slug = product.Slugify(t.Name)
	}
	return nil
}

func (p *Page) normalize() error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Slug == "" {
		p.Slug = product.Slugify(p.Title)
	}
	if p.Layout == "" {
		p.Layout = enums.PageLayoutDefault
	}
	if !p.Layout.IsValid() {
		return fmt.Errorf("invalid layout %q", p.Layout)
	}
	for i, b := range p.Blocks {
		if strings.TrimSpace(string(b.Type)) == "" {
			return fmt.Errorf("block %d: type is required", i)
		}
	}
	return nil
}

// Apply inserts every fixture inside one transaction.
func Apply(ctx context.Context, db *gorm.DB, fx *Fixtures, now time.Time) (Result, error) {
	var res Result
	if fx == nil {
		return res, nil
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, term := range fx.Categories {
			n, err := insertIgnoringSlug(tx, &models.Category{ID: uuid.New(), Name: term.Name, Slug: term.Slug})
			if err != nil {
				return fmt.Errorf("category %s: %w", term.Slug, err)
			}
			res.Categories += n
		}
		for _, term := range fx.Technologies {
			n, err := insertIgnoringSlug(tx, &models.Technology{ID: uuid.New(), Name: term.Name, Slug: term.Slug})
			if err != nil {
				return fmt.Errorf("technology %s: %w", term.Slug, err)
			}
			res.Technologies += n
		}
		for _, page := range fx.Pages {
			row, err := page.model(now)
			if err != nil {
				return fmt.Errorf("page %s: %w", page.Slug, err)
			}
			n, err := insertIgnoringSlug(tx, row)
			if err != nil {
				return fmt.Errorf("page %s: %w", page.Slug, err)
			}
			res.Pages += n
		}
		return nil
	})
	return res, err
}

func (p Page) model(now time.Time) (*models.Page, error) {
	blocks := make([]models.Block, 0, len(p.Blocks))
	for _, b := range p.Blocks {
		block := models.Block{Type: b.Type}
		if len(b.Data) > 0 {
			data, err := json.Marshal(b.Data)
			if err != nil {
				return nil, fmt.Errorf("encode %s block: %w", b.Type, err)
			}
			block.Data = data
		}
		blocks = append(blocks, block)
	}

	row := &models.Page{
		ID:     uuid.New(),
		Title:  p.Title,
		Slug:   p.Slug,
		Layout: p.Layout,
		SEO:    dbtypes.NewJSON(p.SEO),
		Status: enums.PublishStatusDraft,
		Blocks: dbtypes.NewJSON(blocks),
	}
	if p.Published {
		published := now.UTC()
		row.Status = enums.PublishStatusPublished
		row.PublishedAt = &published
	}
	return row, nil
}

func insertIgnoringSlug(tx *gorm.DB, row any) (int, error) {
	result := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return 0, result.Error
	}
	return int(result.RowsAffected), nil
}
