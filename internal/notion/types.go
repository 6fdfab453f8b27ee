package notion

// Wire types for the slice of the Notion v1 API this tool consumes:
// database query, database retrieve, and block children listing. Fields
// not read by the sync engine are left out; unknown JSON is ignored.

// RichTextObject is one styled run inside a block's textual payload.
// Exactly one of Text, Equation, or Mention is populated, per Type.
type RichTextObject struct {
	Type        string          `json:"type"`
	Text        *TextObject     `json:"text,omitempty"`
	Equation    *EquationObject `json:"equation,omitempty"`
	Mention     *MentionObject  `json:"mention,omitempty"`
	Annotations Annotations     `json:"annotations"`
	PlainText   string          `json:"plain_text"`
	Href        *string         `json:"href,omitempty"`
}

// Annotations is the style set shared by all rich text runs.
type Annotations struct {
	Bold          bool   `json:"bold"`
	Italic        bool   `json:"italic"`
	Strikethrough bool   `json:"strikethrough"`
	Underline     bool   `json:"underline"`
	Code          bool   `json:"code"`
	Color         string `json:"color"`
}

// TextObject is a literal text run.
type TextObject struct {
	Content string      `json:"content"`
	Link    *LinkObject `json:"link,omitempty"`
}

// LinkObject is an inline hyperlink.
type LinkObject struct {
	URL string `json:"url"`
}

// EquationObject is a KaTeX expression run.
type EquationObject struct {
	Expression string `json:"expression"`
}

// MentionObject is a cross-reference run. Only page mentions carry data
// the sync engine cares about.
type MentionObject struct {
	Type string         `json:"type"`
	Page *PageReference `json:"page,omitempty"`
}

// PageReference points at another page by id.
type PageReference struct {
	ID string `json:"id"`
}

// ExternalFile is a file hosted outside Notion.
type ExternalFile struct {
	URL string `json:"url"`
}

// HostedFile is a file uploaded to Notion's storage. URLs are signed and
// expire, which is why referenced media is mirrored locally.
type HostedFile struct {
	URL        string `json:"url"`
	ExpiryTime string `json:"expiry_time,omitempty"`
}

// FileObject is Notion's external-or-hosted file union.
type FileObject struct {
	Type     string        `json:"type"`
	External *ExternalFile `json:"external,omitempty"`
	File     *HostedFile   `json:"file,omitempty"`
}

// URL returns the usable URL, preferring the external reference.
func (f *FileObject) URL() string {
	if f == nil {
		return ""
	}
	if f.External != nil && f.External.URL != "" {
		return f.External.URL
	}
	if f.File != nil {
		return f.File.URL
	}
	return ""
}

// IconObject is a page or callout icon: an emoji or a file.
type IconObject struct {
	Type     string        `json:"type"`
	Emoji    string        `json:"emoji,omitempty"`
	External *ExternalFile `json:"external,omitempty"`
	File     *HostedFile   `json:"file,omitempty"`
}

// --- block payloads ---

// TextPayload backs paragraph, heading, list item, quote, and toggle blocks.
type TextPayload struct {
	RichText []RichTextObject `json:"rich_text"`
	Color    string           `json:"color,omitempty"`
}

// ToDoPayload backs to_do blocks.
type ToDoPayload struct {
	RichText []RichTextObject `json:"rich_text"`
	Checked  bool             `json:"checked"`
	Color    string           `json:"color,omitempty"`
}

// CalloutPayload backs callout blocks.
type CalloutPayload struct {
	RichText []RichTextObject `json:"rich_text"`
	Icon     *IconObject      `json:"icon,omitempty"`
	Color    string           `json:"color,omitempty"`
}

// CodePayload backs code blocks.
type CodePayload struct {
	RichText []RichTextObject `json:"rich_text"`
	Caption  []RichTextObject `json:"caption,omitempty"`
	Language string           `json:"language"`
}

// MediaPayload backs image, video, and file blocks: a file union plus caption.
type MediaPayload struct {
	Type     string           `json:"type"`
	External *ExternalFile    `json:"external,omitempty"`
	File     *HostedFile      `json:"file,omitempty"`
	Caption  []RichTextObject `json:"caption,omitempty"`
}

// URL returns the usable media URL, preferring the external reference.
func (m *MediaPayload) URL() string {
	if m == nil {
		return ""
	}
	if m.External != nil && m.External.URL != "" {
		return m.External.URL
	}
	if m.File != nil {
		return m.File.URL
	}
	return ""
}

// URLPayload backs embed, bookmark, and link_preview blocks.
type URLPayload struct {
	URL     string           `json:"url"`
	Caption []RichTextObject `json:"caption,omitempty"`
}

// SyncedFrom identifies the origin block a synced block mirrors.
type SyncedFrom struct {
	BlockID string `json:"block_id"`
}

// SyncedBlockPayload backs synced_block blocks. A nil SyncedFrom marks
// the origin copy; a non-nil one marks a reference.
type SyncedBlockPayload struct {
	SyncedFrom *SyncedFrom `json:"synced_from"`
}

// TablePayload backs table blocks.
type TablePayload struct {
	TableWidth      int  `json:"table_width"`
	HasColumnHeader bool `json:"has_column_header"`
	HasRowHeader    bool `json:"has_row_header"`
}

// TableRowPayload backs table_row blocks. Cells are ordered left to right,
// each an ordered run of rich text.
type TableRowPayload struct {
	Cells [][]RichTextObject `json:"cells"`
}

// RawBlock is one block record as returned by the children listing.
// The payload field matching Type is populated; all others are nil.
type RawBlock struct {
	Object      string `json:"object"`
	ID          string `json:"id"`
	Type        string `json:"type"`
	HasChildren bool   `json:"has_children"`
	Archived    bool   `json:"archived,omitempty"`

	Paragraph        *TextPayload        `json:"paragraph,omitempty"`
	Heading1         *TextPayload        `json:"heading_1,omitempty"`
	Heading2         *TextPayload        `json:"heading_2,omitempty"`
	Heading3         *TextPayload        `json:"heading_3,omitempty"`
	BulletedListItem *TextPayload        `json:"bulleted_list_item,omitempty"`
	NumberedListItem *TextPayload        `json:"numbered_list_item,omitempty"`
	Quote            *TextPayload        `json:"quote,omitempty"`
	Toggle           *TextPayload        `json:"toggle,omitempty"`
	ToDo             *ToDoPayload        `json:"to_do,omitempty"`
	Callout          *CalloutPayload     `json:"callout,omitempty"`
	Code             *CodePayload        `json:"code,omitempty"`
	Image            *MediaPayload       `json:"image,omitempty"`
	Video            *MediaPayload       `json:"video,omitempty"`
	File             *MediaPayload       `json:"file,omitempty"`
	Embed            *URLPayload         `json:"embed,omitempty"`
	Bookmark         *URLPayload         `json:"bookmark,omitempty"`
	LinkPreview      *URLPayload         `json:"link_preview,omitempty"`
	SyncedBlock      *SyncedBlockPayload `json:"synced_block,omitempty"`
	Table            *TablePayload       `json:"table,omitempty"`
	TableRow         *TableRowPayload    `json:"table_row,omitempty"`
}

// --- page and database records ---

// SelectOption is one choice of a select or multi_select property.
type SelectOption struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// DateProperty is the value of a date property.
type DateProperty struct {
	Start string  `json:"start"`
	End   *string `json:"end,omitempty"`
}

// FilePropertyItem is one entry of a files property.
type FilePropertyItem struct {
	Name     string        `json:"name,omitempty"`
	Type     string        `json:"type"`
	External *ExternalFile `json:"external,omitempty"`
	File     *HostedFile   `json:"file,omitempty"`
}

// PropertyValue is a loosely typed page property; the field matching Type
// is populated.
type PropertyValue struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`

	Title       []RichTextObject   `json:"title,omitempty"`
	RichText    []RichTextObject   `json:"rich_text,omitempty"`
	Date        *DateProperty      `json:"date,omitempty"`
	Select      *SelectOption      `json:"select,omitempty"`
	MultiSelect []SelectOption     `json:"multi_select,omitempty"`
	Number      *float64           `json:"number,omitempty"`
	Checkbox    *bool              `json:"checkbox,omitempty"`
	URL         *string            `json:"url,omitempty"`
	Files       []FilePropertyItem `json:"files,omitempty"`
}

// RawPage is one page record from a database query.
type RawPage struct {
	Object         string                   `json:"object"`
	ID             string                   `json:"id"`
	CreatedTime    string                   `json:"created_time,omitempty"`
	LastEditedTime string                   `json:"last_edited_time,omitempty"`
	Archived       bool                     `json:"archived,omitempty"`
	Icon           *IconObject              `json:"icon,omitempty"`
	Cover          *FileObject              `json:"cover,omitempty"`
	Properties     map[string]PropertyValue `json:"properties"`
}

// DatabaseResponse is the database retrieve result: metadata describing
// the whole catalog.
type DatabaseResponse struct {
	Object      string           `json:"object"`
	ID          string           `json:"id"`
	Title       []RichTextObject `json:"title,omitempty"`
	Description []RichTextObject `json:"description,omitempty"`
	Icon        *IconObject      `json:"icon,omitempty"`
	Cover       *FileObject      `json:"cover,omitempty"`
}

// --- query request / pagination envelope ---

// CheckboxFilter matches a checkbox property value.
type CheckboxFilter struct {
	Equals bool `json:"equals"`
}

// DateFilter matches a date property against a bound.
type DateFilter struct {
	OnOrBefore string `json:"on_or_before,omitempty"`
}

// PropertyFilter is a single-property predicate.
type PropertyFilter struct {
	Property string          `json:"property"`
	Checkbox *CheckboxFilter `json:"checkbox,omitempty"`
	Date     *DateFilter     `json:"date,omitempty"`
}

// Filter is the query predicate; only conjunction is used here.
type Filter struct {
	And []PropertyFilter `json:"and,omitempty"`
}

// Sort orders query results by one property.
type Sort struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

// DatabaseQueryRequest is the body of a database query call.
type DatabaseQueryRequest struct {
	Filter      *Filter `json:"filter,omitempty"`
	Sorts       []Sort  `json:"sorts,omitempty"`
	PageSize    int     `json:"page_size,omitempty"`
	StartCursor *string `json:"start_cursor,omitempty"`
}

// DatabaseQueryResponse is one page of database query results.
type DatabaseQueryResponse struct {
	Object     string    `json:"object"`
	Results    []RawPage `json:"results"`
	HasMore    bool      `json:"has_more"`
	NextCursor *string   `json:"next_cursor"`
}

// BlockChildrenResponse is one page of a block children listing.
type BlockChildrenResponse struct {
	Object     string     `json:"object"`
	Results    []RawBlock `json:"results"`
	HasMore    bool       `json:"has_more"`
	NextCursor *string    `json:"next_cursor"`
}
