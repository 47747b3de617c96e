package enums

// PageLayout selects the wrapper template a page renders into.
type PageLayout string

const (
	PageLayoutDefault   PageLayout = "default"
	PageLayoutFullWidth PageLayout = "full_width"
	PageLayoutSidebar   PageLayout = "sidebar"
)

func (l PageLayout) IsValid() bool {
	switch l {
	case PageLayoutDefault, PageLayoutFullWidth, PageLayoutSidebar:
		return true
	default:
		return false
	}
}

// BlockType tags a page content block. The set is open on read: unknown
// types are stored and skipped at render time.
type BlockType string

const (
	BlockTypeHero         BlockType = "hero"
	BlockTypeRichText     BlockType = "rich_text"
	BlockTypeMedia        BlockType = "media"
	BlockTypeCallToAction BlockType = "call_to_action"
	BlockTypeProductGrid  BlockType = "product_grid"
	BlockTypeFAQ          BlockType = "faq"
)
