// Package blocks maps Notion's loosely typed block records into a strict
// internal tree and resolves nested children, synced-block references,
// column layouts, and tables.
package blocks

// Kind tags a block with its content type. The set is fixed; anything the
// source adds later lands on KindUnsupported instead of failing the sync.
type Kind string

const (
	KindParagraph        Kind = "paragraph"
	KindHeading1         Kind = "heading_1"
	KindHeading2         Kind = "heading_2"
	KindHeading3         Kind = "heading_3"
	KindBulletedListItem Kind = "bulleted_list_item"
	KindNumberedListItem Kind = "numbered_list_item"
	KindToDo             Kind = "to_do"
	KindToggle           Kind = "toggle"
	KindQuote            Kind = "quote"
	KindCallout          Kind = "callout"
	KindCode             Kind = "code"
	KindImage            Kind = "image"
	KindVideo            Kind = "video"
	KindFile             Kind = "file"
	KindEmbed            Kind = "embed"
	KindBookmark         Kind = "bookmark"
	KindLinkPreview      Kind = "link_preview"
	KindSyncedBlock      Kind = "synced_block"
	KindColumnList       Kind = "column_list"
	KindColumn           Kind = "column"
	KindTable            Kind = "table"
	KindTableRow         Kind = "table_row"
	KindTableOfContents  Kind = "table_of_contents"
	KindUnsupported      Kind = "unsupported"
)

// Annotations is the style set of a rich text span.
type Annotations struct {
	Bold          bool   `json:"bold,omitempty"`
	Italic        bool   `json:"italic,omitempty"`
	Strikethrough bool   `json:"strikethrough,omitempty"`
	Underline     bool   `json:"underline,omitempty"`
	Code          bool   `json:"code,omitempty"`
	Color         string `json:"color,omitempty"`
}

// Text is a literal text span payload.
type Text struct {
	Content string `json:"content"`
	LinkURL string `json:"link_url,omitempty"`
}

// Equation is a KaTeX expression span payload.
type Equation struct {
	Expression string `json:"expression"`
}

// Mention is a cross-reference span payload.
type Mention struct {
	PageID string `json:"page_id,omitempty"`
}

// RichText is one styled run of a block's textual content. Exactly one of
// Text, Equation, or Mention is non-nil.
type RichText struct {
	PlainText   string      `json:"plain_text"`
	Href        string      `json:"href,omitempty"`
	Annotations Annotations `json:"annotations"`

	Text     *Text     `json:"text,omitempty"`
	Equation *Equation `json:"equation,omitempty"`
	Mention  *Mention  `json:"mention,omitempty"`
}

// ToDo is the to_do payload.
type ToDo struct {
	Checked bool `json:"checked"`
}

// Code is the code payload.
type Code struct {
	Language string     `json:"language"`
	Caption  []RichText `json:"caption,omitempty"`
}

// Media is the payload of file-backed kinds (image, video, file). URL
// prefers an externally hosted reference over a Notion-hosted one.
type Media struct {
	URL     string     `json:"url"`
	Caption []RichText `json:"caption,omitempty"`
}

// Link is the payload of URL kinds (embed, bookmark, link_preview).
type Link struct {
	URL string `json:"url"`
}

// Callout is the callout payload. Icon holds either an emoji or a file URL.
type Callout struct {
	Icon  string `json:"icon,omitempty"`
	Color string `json:"color,omitempty"`
}

// Table is the table payload; rows arrive as table_row children.
type Table struct {
	Width           int  `json:"width"`
	HasColumnHeader bool `json:"has_column_header"`
	HasRowHeader    bool `json:"has_row_header"`
}

// TableRow is the table_row payload: ordered cells, each an ordered run
// of rich text, matching the listing order of the source.
type TableRow struct {
	Cells [][]RichText `json:"cells"`
}

// Block is one node of a post's content tree. Kind selects which payload
// pointer is populated; Children is filled by the resolver when
// HasChildren is set and resolution succeeds, and stays empty when a
// subtree fails.
type Block struct {
	ID          string `json:"id"`
	Kind        Kind   `json:"kind"`
	HasChildren bool   `json:"has_children,omitempty"`

	RichTexts []RichText `json:"rich_texts,omitempty"`
	Children  []Block    `json:"children,omitempty"`

	ToDo     *ToDo     `json:"to_do,omitempty"`
	Code     *Code     `json:"code,omitempty"`
	Media    *Media    `json:"media,omitempty"`
	Link     *Link     `json:"link,omitempty"`
	Callout  *Callout  `json:"callout,omitempty"`
	Table    *Table    `json:"table,omitempty"`
	TableRow *TableRow `json:"table_row,omitempty"`

	// SyncedFrom is the referenced origin block id for synced_block
	// references; empty for origins and all other kinds.
	SyncedFrom string `json:"synced_from,omitempty"`
}

// PlainText concatenates the plain text of all top-level rich text runs.
func (b *Block) PlainText() string {
	var out string
	for _, rt := range b.RichTexts {
		out += rt.PlainText
	}
	return out
}
