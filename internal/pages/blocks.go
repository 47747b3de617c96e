package pages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
)

// BlockRenderer turns one block's data into an HTML fragment.
type BlockRenderer func(ctx context.Context, data json.RawMessage) (template.HTML, error)

type heroData struct {
	Heading    string `json:"heading"`
	Subheading string `json:"subheading"`
	ImageURL   string `json:"imageUrl"`
	CTALabel   string `json:"ctaLabel"`
	CTAHref    string `json:"ctaHref"`
}

type richTextData struct {
	Text string `json:"text"`
}

type mediaData struct {
	URL     string `json:"url"`
	Alt     string `json:"alt"`
	Caption string `json:"caption"`
}

type callToActionData struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
	Label   string `json:"label"`
	Href    string `json:"href"`
}

type productGridData struct {
	Heading    string      `json:"heading"`
	ProductIDs []uuid.UUID `json:"productIds"`
	Category   string      `json:"category"`
	Limit      int         `json:"limit"`
}

type faqData struct {
	Heading string `json:"heading"`
	Items   []struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	} `json:"items"`
}

var fragments = template.Must(template.New("blocks").Parse(`
{{define "hero"}}<section class="block hero">{{if .ImageURL}}<img src="{{.ImageURL}}" alt="">{{end}}<h1>{{.Heading}}</h1>{{if .Subheading}}<p>{{.Subheading}}</p>{{end}}{{if .CTAHref}}<a class="button" href="{{.CTAHref}}">{{.CTALabel}}</a>{{end}}</section>{{end}}
{{define "rich_text"}}<section class="block rich-text">{{range .}}<p>{{range $i, $line := .}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>{{end}}</section>{{end}}
{{define "media"}}<figure class="block media"><img src="{{.URL}}" alt="{{.Alt}}">{{if .Caption}}<figcaption>{{.Caption}}</figcaption>{{end}}</figure>{{end}}
{{define "call_to_action"}}<section class="block cta"><h2>{{.Heading}}</h2>{{if .Body}}<p>{{.Body}}</p>{{end}}<a class="button" href="{{.Href}}">{{.Label}}</a></section>{{end}}
{{define "product_grid"}}<section class="block product-grid">{{if .Heading}}<h2>{{.Heading}}</h2>{{end}}<ul>{{range .Products}}<li><a href="/products/{{.Slug}}">{{if .Images}}<img src="{{index .Images 0}}" alt="">{{end}}<span>{{.Title}}</span><span class="price">{{.Price.StringFixed 2}}</span></a></li>{{end}}</ul></section>{{end}}
{{define "faq"}}<section class="block faq">{{if .Heading}}<h2>{{.Heading}}</h2>{{end}}{{range .Items}}<details><summary>{{.Question}}</summary><p>{{.Answer}}</p></details>{{end}}</section>{{end}}
`))

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := fragments.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// decodeInto renders name after unmarshalling data into a fresh T.
func decodeInto[T any](name string) BlockRenderer {
	return func(_ context.Context, data json.RawMessage) (template.HTML, error) {
		var v T
		if err := json.Unmarshal(orEmpty(data), &v); err != nil {
			return "", fmt.Errorf("decode %s block: %w", name, err)
		}
		return execute(name, v)
	}
}

func renderRichText(_ context.Context, data json.RawMessage) (template.HTML, error) {
	var v richTextData
	if err := json.Unmarshal(orEmpty(data), &v); err != nil {
		return "", fmt.Errorf("decode rich_text block: %w", err)
	}
	var paragraphs [][]string
	for _, para := range strings.Split(strings.ReplaceAll(v.Text, "\r\n", "\n"), "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		paragraphs = append(paragraphs, strings.Split(strings.TrimSpace(para), "\n"))
	}
	return execute("rich_text", paragraphs)
}

// productGridRenderer resolves the grid's products from source; explicit ids
// win over a category filter, and only published products are shown.
func productGridRenderer(source GridSource) BlockRenderer {
	return func(ctx context.Context, data json.RawMessage) (template.HTML, error) {
		var v productGridData
		if err := json.Unmarshal(orEmpty(data), &v); err != nil {
			return "", fmt.Errorf("decode product_grid block: %w", err)
		}
		if v.Limit <= 0 || v.Limit > 24 {
			v.Limit = 8
		}
		var products []models.Product
		if source != nil {
			found, err := source.GridProducts(ctx, v.ProductIDs, v.Category, v.Limit)
			if err != nil {
				return "", fmt.Errorf("load grid products: %w", err)
			}
			products = found
		}
		return execute("product_grid", struct {
			Heading  string
			Products []models.Product
		}{Heading: v.Heading, Products: products})
	}
}

func orEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		return json.RawMessage("{}")
	}
	return data
}

// DefaultRenderers is the built-in block registry.
func DefaultRenderers(source GridSource) map[enums.BlockType]BlockRenderer {
	return map[enums.BlockType]BlockRenderer{
		enums.BlockTypeHero:         decodeInto[heroData]("hero"),
		enums.BlockTypeRichText:     renderRichText,
		enums.BlockTypeMedia:        decodeInto[mediaData]("media"),
		enums.BlockTypeCallToAction: decodeInto[callToActionData]("call_to_action"),
		enums.BlockTypeProductGrid:  productGridRenderer(source),
		enums.BlockTypeFAQ:          decodeInto[faqData]("faq"),
	}
}
