// Package sync orchestrates a full content sync: load the post catalog,
// resolve each post's block tree, then download every referenced file.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/sync/errgroup"

	"github.com/agini/astro-notion-blog/internal/blocks"
	"github.com/agini/astro-notion-blog/internal/config"
	"github.com/agini/astro-notion-blog/internal/images"
	"github.com/agini/astro-notion-blog/internal/posts"
)

// TreeResolver resolves one container's block tree.
type TreeResolver interface {
	ResolveTree(ctx context.Context, containerID string) ([]blocks.Block, error)
}

// ImageFetcher downloads one file URL to disk.
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) images.Result
}

// SnapshotWriter persists a resolved tree for later offline use.
type SnapshotWriter interface {
	Store(containerID string, bs []blocks.Block) error
}

// StateSaver persists download state so the next run can skip files
// already on disk.
type StateSaver interface {
	Save() error
}

// ResolvedPost pairs a catalog entry with its fully resolved block tree.
type ResolvedPost struct {
	Post   posts.Post     `json:"post"`
	Blocks []blocks.Block `json:"blocks"`
}

// Report summarizes one sync run.
type Report struct {
	Posts         int
	FailedPosts   int
	ImagesStored  int
	ImagesCached  int
	ImagesSkipped int
	Duration      time.Duration
}

// Engine drives the sync. Individual post or image failures are logged
// and counted; only a failure to load the catalog itself aborts the run.
type Engine struct {
	catalog   *posts.Catalog
	resolver  TreeResolver
	images    ImageFetcher
	snapshots SnapshotWriter
	state     StateSaver
	cfg       *config.SyncConfig
	progress  bool
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSnapshotWriter stores each post's resolved tree after syncing it.
func WithSnapshotWriter(w SnapshotWriter) EngineOption {
	return func(e *Engine) { e.snapshots = w }
}

// WithStateSaver persists download state at the end of each run.
func WithStateSaver(s StateSaver) EngineOption {
	return func(e *Engine) { e.state = s }
}

// WithProgress draws terminal progress bars during the run.
func WithProgress() EngineOption {
	return func(e *Engine) { e.progress = true }
}

// NewEngine creates a sync engine.
func NewEngine(catalog *posts.Catalog, resolver TreeResolver, fetcher ImageFetcher, cfg *config.SyncConfig, opts ...EngineOption) *Engine {
	e := &Engine{
		catalog:  catalog,
		resolver: resolver,
		images:   fetcher,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncAll resolves every published post and downloads all referenced
// files. Posts are resolved concurrently up to the configured limit.
func (e *Engine) SyncAll(ctx context.Context) (*Report, error) {
	start := time.Now()

	all, err := e.catalog.AllPosts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading post catalog: %w", err)
	}
	slog.Info("starting sync", "posts", len(all))

	bar := e.newBar(len(all), "Resolving posts")

	resolved := make([]*ResolvedPost, len(all))
	var (
		mu     sync.Mutex
		failed int
	)

	g := &errgroup.Group{}
	g.SetLimit(e.cfg.Concurrency)
	for i, p := range all {
		i, p := i, p
		g.Go(func() error {
			defer bar.Add(1)
			bs, err := e.resolver.ResolveTree(ctx, p.ID)
			if err != nil {
				slog.Error("resolving post failed", "slug", p.Slug, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
				if bs == nil {
					return nil
				}
				// A partial tree is still usable; fall through and keep it.
			}
			resolved[i] = &ResolvedPost{Post: p, Blocks: bs}
			return nil
		})
	}
	g.Wait()
	bar.Finish()

	urls := e.collectURLs(resolved)

	bar = e.newBar(len(urls), "Downloading images")
	report := &Report{Posts: len(all), FailedPosts: failed}
	for _, u := range urls {
		res := e.images.Fetch(ctx, u)
		switch res.Outcome {
		case images.OutcomeStored:
			report.ImagesStored++
		case images.OutcomeCached:
			report.ImagesCached++
		case images.OutcomeSkipped:
			report.ImagesSkipped++
		}
		bar.Add(1)
	}
	bar.Finish()

	if e.snapshots != nil {
		for _, rp := range resolved {
			if rp == nil {
				continue
			}
			if err := e.snapshots.Store(rp.Post.ID, rp.Blocks); err != nil {
				slog.Warn("storing snapshot failed", "slug", rp.Post.Slug, "error", err)
			}
		}
	}

	e.saveState()

	report.Duration = time.Since(start)
	slog.Info("sync completed",
		"posts", report.Posts,
		"failed", report.FailedPosts,
		"images_stored", report.ImagesStored,
		"images_cached", report.ImagesCached,
		"images_skipped", report.ImagesSkipped,
		"duration_s", report.Duration.Seconds())
	return report, nil
}

// SyncPost resolves a single post by slug, including its images.
func (e *Engine) SyncPost(ctx context.Context, slug string) (*ResolvedPost, error) {
	p, ok, err := e.catalog.PostBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("loading post catalog: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("no post with slug %q", slug)
	}

	bs, err := e.resolver.ResolveTree(ctx, p.ID)
	if err != nil {
		if bs == nil {
			return nil, fmt.Errorf("resolving post %q: %w", slug, err)
		}
		slog.Error("post resolved with failed subtrees", "slug", slug, "error", err)
	}

	rp := &ResolvedPost{Post: *p, Blocks: bs}
	for _, u := range e.collectURLs([]*ResolvedPost{rp}) {
		e.images.Fetch(ctx, u)
	}
	e.saveState()
	return rp, nil
}

// saveState persists the download tracker when one is wired in. Failure
// costs re-downloads on the next run, not the sync itself.
func (e *Engine) saveState() {
	if e.state == nil {
		return
	}
	if err := e.state.Save(); err != nil {
		slog.Warn("failed to save download state", "error", err)
	}
}

// collectURLs gathers every downloadable file URL across the resolved
// posts, de-duplicated in first-seen order: post icons, covers, featured
// images, then media blocks in tree order.
func (e *Engine) collectURLs(resolved []*ResolvedPost) []string {
	seen := make(map[string]bool)
	var urls []string
	add := func(u string) {
		if u == "" || !strings.HasPrefix(u, "http") {
			return
		}
		if !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}

	for _, rp := range resolved {
		if rp == nil {
			continue
		}
		add(rp.Post.Icon)
		add(rp.Post.Cover)
		add(rp.Post.FeaturedImage)
		walkMedia(rp.Blocks, add)
	}
	return urls
}

// CollectMediaURLs returns the media file URLs of one block tree in
// tree order, de-duplicated.
func CollectMediaURLs(bs []blocks.Block) []string {
	seen := make(map[string]bool)
	var urls []string
	walkMedia(bs, func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	})
	return urls
}

func walkMedia(bs []blocks.Block, add func(string)) {
	for i := range bs {
		b := &bs[i]
		switch b.Kind {
		case blocks.KindImage, blocks.KindVideo, blocks.KindFile:
			if b.Media != nil {
				add(b.Media.URL)
			}
		case blocks.KindCallout:
			if b.Callout != nil && strings.HasPrefix(b.Callout.Icon, "http") {
				add(b.Callout.Icon)
			}
		}
		walkMedia(b.Children, add)
	}
}

// newBar returns a progress bar, or a silent one when progress is off.
func (e *Engine) newBar(total int, description string) *progressbar.ProgressBar {
	if !e.progress {
		return progressbar.NewOptions(total, progressbar.OptionSetWriter(silentWriter{}))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
}

type silentWriter struct{}

func (silentWriter) Write(p []byte) (int, error) { return len(p), nil }
