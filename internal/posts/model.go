// Package posts builds the typed post catalog from the remote database and
// serves list, lookup, and pagination queries over the cached result.
package posts

import (
	"strings"
	"time"

	"github.com/agini/astro-notion-blog/internal/notion"
)

// Property names of the fixed post schema in the source database.
const (
	propTitle         = "Page"
	propSlug          = "Slug"
	propDate          = "Date"
	propTags          = "Tags"
	propPublished     = "Published"
	propRank          = "Rank"
	propExcerpt       = "Excerpt"
	propFeaturedImage = "FeaturedImage"
	propPageType      = "PageType"
)

// PageTypePost marks regular blog posts; standalone pages carry other values.
const PageTypePost = "post"

// Post is one published page of the catalog, mapped to render-ready form.
type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Slug          string    `json:"slug"`
	PageType      string    `json:"page_type"`
	Date          time.Time `json:"date"`
	Tags          []string  `json:"tags,omitempty"`
	Icon          string    `json:"icon,omitempty"`
	Cover         string    `json:"cover,omitempty"`
	FeaturedImage string    `json:"featured_image,omitempty"`
	Rank          float64   `json:"rank,omitempty"`
	Excerpt       string    `json:"excerpt,omitempty"`
}

// Database is the catalog's own metadata, describing the whole blog
// rather than an individual post.
type Database struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Cover       string `json:"cover,omitempty"`
}

// dateFormats accepted for the Date property, most specific first.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// buildPost maps one raw page record to a Post. It returns false when the
// record fails the validity invariant: a post needs a non-empty title, a
// non-empty slug, and a parseable date.
func buildPost(raw notion.RawPage) (Post, bool) {
	p := Post{
		ID:       raw.ID,
		PageType: PageTypePost,
	}

	for name, prop := range raw.Properties {
		switch name {
		case propTitle:
			p.Title = plainText(prop.Title)
		case propSlug:
			p.Slug = strings.TrimSpace(plainText(prop.RichText))
		case propDate:
			if prop.Date != nil {
				p.Date = parseDate(prop.Date.Start)
			}
		case propTags:
			for _, opt := range prop.MultiSelect {
				p.Tags = append(p.Tags, opt.Name)
			}
		case propRank:
			if prop.Number != nil {
				p.Rank = *prop.Number
			}
		case propExcerpt:
			p.Excerpt = plainText(prop.RichText)
		case propFeaturedImage:
			if len(prop.Files) > 0 {
				p.FeaturedImage = fileItemURL(prop.Files[0])
			} else if prop.URL != nil {
				p.FeaturedImage = *prop.URL
			}
		case propPageType:
			if prop.Select != nil && prop.Select.Name != "" {
				p.PageType = prop.Select.Name
			}
		}
	}

	p.Icon = iconURL(raw.Icon)
	p.Cover = raw.Cover.URL()

	if p.Title == "" || p.Slug == "" || p.Date.IsZero() {
		return Post{}, false
	}
	return p, true
}

// buildDatabase maps the raw database record to catalog metadata.
func buildDatabase(raw *notion.DatabaseResponse) *Database {
	return &Database{
		Title:       plainText(raw.Title),
		Description: plainText(raw.Description),
		Icon:        iconURL(raw.Icon),
		Cover:       raw.Cover.URL(),
	}
}

func plainText(rts []notion.RichTextObject) string {
	var b strings.Builder
	for _, rt := range rts {
		b.WriteString(rt.PlainText)
	}
	return b.String()
}

func parseDate(s string) time.Time {
	for _, format := range dateFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func iconURL(icon *notion.IconObject) string {
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

func fileItemURL(f notion.FilePropertyItem) string {
	if f.External != nil && f.External.URL != "" {
		return f.External.URL
	}
	if f.File != nil {
		return f.File.URL
	}
	return ""
}
