package blocks

import (
	"github.com/agini/astro-notion-blog/internal/config"
	"github.com/agini/astro-notion-blog/internal/notion"
)

// Build maps one raw block record into the internal representation. It is
// a pure transformation with no I/O, and it never fails: kinds outside the
// known set become KindUnsupported, and a missing payload yields an empty
// one rather than aborting the sync.
func Build(raw notion.RawBlock) Block {
	b := Block{
		ID:          raw.ID,
		Kind:        Kind(raw.Type),
		HasChildren: raw.HasChildren,
	}

	switch raw.Type {
	case "paragraph":
		b.RichTexts = textOf(raw.Paragraph)
	case "heading_1":
		b.RichTexts = textOf(raw.Heading1)
	case "heading_2":
		b.RichTexts = textOf(raw.Heading2)
	case "heading_3":
		b.RichTexts = textOf(raw.Heading3)
	case "bulleted_list_item":
		b.RichTexts = textOf(raw.BulletedListItem)
	case "numbered_list_item":
		b.RichTexts = textOf(raw.NumberedListItem)
	case "quote":
		b.RichTexts = textOf(raw.Quote)
	case "toggle":
		b.RichTexts = textOf(raw.Toggle)
	case "to_do":
		b.ToDo = &ToDo{}
		if raw.ToDo != nil {
			b.RichTexts = buildRichTexts(raw.ToDo.RichText)
			b.ToDo.Checked = raw.ToDo.Checked
		}
	case "callout":
		b.Callout = &Callout{}
		if raw.Callout != nil {
			b.RichTexts = buildRichTexts(raw.Callout.RichText)
			b.Callout.Icon = iconValue(raw.Callout.Icon)
			b.Callout.Color = raw.Callout.Color
		}
	case "code":
		b.Code = &Code{}
		if raw.Code != nil {
			b.RichTexts = buildRichTexts(raw.Code.RichText)
			b.Code.Language = raw.Code.Language
			b.Code.Caption = buildRichTexts(raw.Code.Caption)
		}
	case "image":
		b.Media = mediaOf(raw.Image)
	case "video":
		b.Media = mediaOf(raw.Video)
	case "file":
		b.Media = mediaOf(raw.File)
	case "embed":
		b.Link = linkOf(raw.Embed)
	case "bookmark":
		b.Link = linkOf(raw.Bookmark)
	case "link_preview":
		b.Link = linkOf(raw.LinkPreview)
	case "synced_block":
		if raw.SyncedBlock != nil && raw.SyncedBlock.SyncedFrom != nil {
			if id, err := config.CanonicalID(raw.SyncedBlock.SyncedFrom.BlockID); err == nil {
				b.SyncedFrom = id
			}
		}
	case "table":
		b.Table = &Table{}
		if raw.Table != nil {
			b.Table.Width = raw.Table.TableWidth
			b.Table.HasColumnHeader = raw.Table.HasColumnHeader
			b.Table.HasRowHeader = raw.Table.HasRowHeader
		}
	case "table_row":
		row := &TableRow{}
		if raw.TableRow != nil {
			row.Cells = make([][]RichText, 0, len(raw.TableRow.Cells))
			for _, cell := range raw.TableRow.Cells {
				row.Cells = append(row.Cells, buildRichTexts(cell))
			}
		}
		b.TableRow = row
	case "column_list", "column", "table_of_contents":
		// Structural kinds carry no payload of their own.
	default:
		b.Kind = KindUnsupported
	}

	return b
}

func textOf(p *notion.TextPayload) []RichText {
	if p == nil {
		return nil
	}
	return buildRichTexts(p.RichText)
}

func mediaOf(p *notion.MediaPayload) *Media {
	m := &Media{}
	if p != nil {
		m.URL = p.URL()
		m.Caption = buildRichTexts(p.Caption)
	}
	return m
}

func linkOf(p *notion.URLPayload) *Link {
	l := &Link{}
	if p != nil {
		l.URL = p.URL
	}
	return l
}

// buildRichTexts maps raw rich text runs, keeping run order.
func buildRichTexts(raws []notion.RichTextObject) []RichText {
	if len(raws) == 0 {
		return nil
	}
	out := make([]RichText, 0, len(raws))
	for _, raw := range raws {
		out = append(out, buildRichText(raw))
	}
	return out
}

// buildRichText maps one run: the shared annotation/plain-text/link fields
// plus exactly one payload variant selected by the run's type.
func buildRichText(raw notion.RichTextObject) RichText {
	rt := RichText{
		PlainText: raw.PlainText,
		Annotations: Annotations{
			Bold:          raw.Annotations.Bold,
			Italic:        raw.Annotations.Italic,
			Strikethrough: raw.Annotations.Strikethrough,
			Underline:     raw.Annotations.Underline,
			Code:          raw.Annotations.Code,
			Color:         raw.Annotations.Color,
		},
	}
	if raw.Href != nil {
		rt.Href = *raw.Href
	}

	switch raw.Type {
	case "equation":
		equation := &Equation{}
		if raw.Equation != nil {
			equation.Expression = raw.Equation.Expression
		}
		rt.Equation = equation
	case "mention":
		mention := &Mention{}
		if raw.Mention != nil && raw.Mention.Page != nil {
			mention.PageID = raw.Mention.Page.ID
		}
		rt.Mention = mention
	default:
		text := &Text{}
		if raw.Text != nil {
			text.Content = raw.Text.Content
			if raw.Text.Link != nil {
				text.LinkURL = raw.Text.Link.URL
			}
		}
		rt.Text = text
	}

	return rt
}

// iconValue flattens an icon union to a single string: the emoji itself,
// or the file URL.
func iconValue(icon *notion.IconObject) string {
	if icon == nil {
		return ""
	}
	if icon.Emoji != "" {
		return icon.Emoji
	}
	if icon.External != nil && icon.External.URL != "" {
		return icon.External.URL
	}
	if icon.File != nil {
		return icon.File.URL
	}
	return ""
}
