package posts

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agini/astro-notion-blog/internal/notion"
)

// Source is the slice of the Notion client the catalog needs.
type Source interface {
	QueryDatabaseAll(ctx context.Context, req notion.DatabaseQueryRequest) ([]notion.RawPage, error)
	RetrieveDatabase(ctx context.Context) (*notion.DatabaseResponse, error)
}

// Catalog fetches and caches the post list for the lifetime of the process.
// The first successful fetch is memoized; concurrent first callers share a
// single in-flight fetch instead of each hitting the API. Derived queries
// are pure functions over the cached sequence and never re-fetch.
type Catalog struct {
	source  Source
	perPage int

	group singleflight.Group

	mu       sync.RWMutex
	posts    []Post
	loaded   bool
	database *Database
}

// NewCatalog creates a catalog over the given source with a fixed page size
// for the pagination queries.
func NewCatalog(source Source, perPage int) *Catalog {
	return &Catalog{
		source:  source,
		perPage: perPage,
	}
}

// AllPosts returns every valid published post, date descending. The result
// is fetched once per process and served from cache afterwards; callers
// must treat the returned slice as read-only.
func (c *Catalog) AllPosts(ctx context.Context) ([]Post, error) {
	c.mu.RLock()
	if c.loaded {
		posts := c.posts
		c.mu.RUnlock()
		return posts, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("all-posts", func() (any, error) {
		posts, err := c.fetchPosts(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.posts = posts
		c.loaded = true
		c.mu.Unlock()
		return posts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Post), nil
}

// fetchPosts queries the database filtered server-side to published,
// non-future pages sorted date descending, then drops records failing the
// post validity invariant.
func (c *Catalog) fetchPosts(ctx context.Context) ([]Post, error) {
	req := notion.DatabaseQueryRequest{
		Filter: &notion.Filter{
			And: []notion.PropertyFilter{
				{
					Property: propPublished,
					Checkbox: &notion.CheckboxFilter{Equals: true},
				},
				{
					Property: propDate,
					Date:     &notion.DateFilter{OnOrBefore: time.Now().Format(time.RFC3339)},
				},
			},
		},
		Sorts: []notion.Sort{
			{Property: propDate, Direction: "descending"},
		},
	}

	raws, err := c.source.QueryDatabaseAll(ctx, req)
	if err != nil {
		return nil, err
	}

	posts := make([]Post, 0, len(raws))
	for _, raw := range raws {
		p, ok := buildPost(raw)
		if !ok {
			slog.Debug("dropping invalid page record", "page_id", raw.ID)
			continue
		}
		posts = append(posts, p)
	}

	slog.Info("post catalog loaded", "total", len(raws), "valid", len(posts))
	return posts, nil
}

// Database returns the catalog metadata, fetched once per process.
func (c *Catalog) Database(ctx context.Context) (*Database, error) {
	c.mu.RLock()
	if c.database != nil {
		db := c.database
		c.mu.RUnlock()
		return db, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("database", func() (any, error) {
		raw, err := c.source.RetrieveDatabase(ctx)
		if err != nil {
			return nil, err
		}
		db := buildDatabase(raw)
		c.mu.Lock()
		c.database = db
		c.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Database), nil
}

// PostBySlug returns the first post with the given slug in date-descending
// order. Slugs are not guaranteed unique by the source.
func (c *Catalog) PostBySlug(ctx context.Context, slug string) (*Post, bool, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range posts {
		if posts[i].Slug == slug {
			return &posts[i], true, nil
		}
	}
	return nil, false, nil
}

// PostByID returns the post with the given page id.
func (c *Catalog) PostByID(ctx context.Context, id string) (*Post, bool, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, false, err
	}
	for i := range posts {
		if posts[i].ID == id {
			return &posts[i], true, nil
		}
	}
	return nil, false, nil
}

// PostsByPage returns the nth page of posts, 1-indexed. Out-of-range pages
// yield an empty sequence.
func (c *Catalog) PostsByPage(ctx context.Context, page int) ([]Post, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, err
	}
	return paginate(posts, page, c.perPage), nil
}

// PostsByTag returns all posts carrying the given tag, preserving order.
func (c *Catalog) PostsByTag(ctx context.Context, tag string) ([]Post, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, err
	}
	return filterByTag(posts, tag), nil
}

// PostsByTagAndPage returns the nth page of posts carrying the given tag.
func (c *Catalog) PostsByTagAndPage(ctx context.Context, tag string, page int) ([]Post, error) {
	posts, err := c.PostsByTag(ctx, tag)
	if err != nil {
		return nil, err
	}
	return paginate(posts, page, c.perPage), nil
}

// PageCount returns the number of pagination pages for all posts.
func (c *Catalog) PageCount(ctx context.Context) (int, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return 0, err
	}
	return pageCount(len(posts), c.perPage), nil
}

// PageCountForTag returns the number of pagination pages for one tag.
func (c *Catalog) PageCountForTag(ctx context.Context, tag string) (int, error) {
	posts, err := c.PostsByTag(ctx, tag)
	if err != nil {
		return 0, err
	}
	return pageCount(len(posts), c.perPage), nil
}

// RankedPosts returns posts with a non-zero rank, highest rank first.
func (c *Catalog) RankedPosts(ctx context.Context) ([]Post, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, err
	}
	var ranked []Post
	for _, p := range posts {
		if p.Rank > 0 {
			ranked = append(ranked, p)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Rank > ranked[j].Rank
	})
	return ranked, nil
}

// PagesByType returns posts of the given page type (e.g. "post" for blog
// entries, other values for standalone pages).
func (c *Catalog) PagesByType(ctx context.Context, pageType string) ([]Post, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, err
	}
	var out []Post
	for _, p := range posts {
		if p.PageType == pageType {
			out = append(out, p)
		}
	}
	return out, nil
}

// AllTags returns the de-duplicated union of all tag labels in first-seen
// order over the date-descending post sequence.
func (c *Catalog) AllTags(ctx context.Context) ([]string, error) {
	posts, err := c.AllPosts(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var tags []string
	for _, p := range posts {
		for _, tag := range p.Tags {
			if !seen[tag] {
				seen[tag] = true
				tags = append(tags, tag)
			}
		}
	}
	return tags, nil
}

func filterByTag(posts []Post, tag string) []Post {
	var out []Post
	for _, p := range posts {
		for _, t := range p.Tags {
			if t == tag {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func paginate(posts []Post, page, perPage int) []Post {
	if page < 1 {
		return []Post{}
	}
	start := (page - 1) * perPage
	if start >= len(posts) {
		return []Post{}
	}
	end := start + perPage
	if end > len(posts) {
		end = len(posts)
	}
	return posts[start:end]
}

func pageCount(total, perPage int) int {
	return (total + perPage - 1) / perPage
}
