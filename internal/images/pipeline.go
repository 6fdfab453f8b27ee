// Package images downloads the files referenced by synced content into a
// local directory, normalizing photos on the way: EXIF orientation is
// baked in, metadata is stripped, and an optional width cap is applied.
package images

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/davidbyttow/govips/v2/vips"

	"github.com/agini/astro-notion-blog/internal/config"
)

// Outcome classifies what Fetch did with one URL.
type Outcome string

const (
	// OutcomeStored means the file was downloaded and written.
	OutcomeStored Outcome = "stored"
	// OutcomeCached means a previous run already stored the file.
	OutcomeCached Outcome = "cached"
	// OutcomeSkipped means the URL was not stored; the reason is logged.
	OutcomeSkipped Outcome = "skipped"
)

// Result describes the disposition of one fetched URL.
type Result struct {
	Outcome   Outcome
	Path      string
	SizeBytes int64
}

// Pipeline fetches remote files to disk. Failures never abort a sync run:
// a URL that cannot be fetched or written is logged and reported as
// skipped, and the caller moves on.
type Pipeline struct {
	httpClient   *http.Client
	dir          string
	width        int
	maxBytes     int64
	skipPatterns []string
	state        *StateTracker
}

// NewPipeline creates a pipeline writing into cfg.Dir. state may be nil,
// in which case every URL is fetched fresh.
func NewPipeline(cfg *config.ImagesConfig, state *StateTracker) *Pipeline {
	return &Pipeline{
		httpClient:   &http.Client{Timeout: cfg.Timeout()},
		dir:          cfg.Dir,
		width:        cfg.Width,
		maxBytes:     int64(cfg.MaxSizeMB) * 1024 * 1024,
		skipPatterns: cfg.SkipPatterns,
		state:        state,
	}
}

// SaveState persists the download state so later runs can skip files
// already on disk. A no-op without a tracker.
func (p *Pipeline) SaveState() error {
	if p.state == nil {
		return nil
	}
	return p.state.Save()
}

// Startup initialises libvips. Call once before the first Fetch.
func Startup() {
	vips.LoggingSettings(nil, vips.LogLevelWarning)
	vips.Startup(&vips.Config{
		MaxCacheSize: 100,
		MaxCacheMem:  50 * 1024 * 1024,
	})
	slog.Debug("libvips started", "version", vips.Version)
}

// Shutdown releases libvips resources.
func Shutdown() {
	vips.Shutdown()
}

// Fetch downloads one URL into the image directory. The destination is
// derived from the URL path so re-fetching the same object lands on the
// same file. Photos (JPEG and TIFF) are re-encoded with orientation baked
// in and metadata removed; everything else is copied byte for byte.
func (p *Pipeline) Fetch(ctx context.Context, rawURL string) Result {
	dest, err := p.destPath(rawURL)
	if err != nil {
		slog.Warn("skipping unusable image url", "url", rawURL, "error", err)
		return Result{Outcome: OutcomeSkipped}
	}

	if p.matchesSkipPattern(rawURL) {
		slog.Debug("image url matches skip pattern", "url", rawURL)
		return Result{Outcome: OutcomeSkipped}
	}

	if p.state != nil {
		if fs, ok := p.state.AlreadyDownloaded(rawURL); ok {
			return Result{Outcome: OutcomeCached, Path: fs.Path, SizeBytes: fs.SizeBytes}
		}
	}

	size, err := p.download(ctx, rawURL, dest)
	if err != nil {
		slog.Warn("image download failed", "url", rawURL, "error", err)
		return Result{Outcome: OutcomeSkipped}
	}

	if p.state != nil {
		p.state.MarkDownloaded(rawURL, dest, size)
	}
	return Result{Outcome: OutcomeStored, Path: dest, SizeBytes: size}
}

// destPath maps a URL to <dir>/<second-to-last path segment>/<last path
// segment>, with the filename percent-decoded. Hosted file URLs keep a
// stable object id in the second-to-last segment even as the signed query
// string rotates.
func (p *Pipeline) destPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parsing url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 {
		return "", fmt.Errorf("url path %q has no directory segment", u.Path)
	}

	dir := segments[len(segments)-2]
	name := segments[len(segments)-1]
	if decoded, err := url.PathUnescape(name); err == nil {
		name = decoded
	}
	if dir == "" || name == "" {
		return "", fmt.Errorf("url path %q yields empty segments", u.Path)
	}

	return filepath.Join(p.dir, dir, name), nil
}

func (p *Pipeline) matchesSkipPattern(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	for _, pattern := range p.skipPatterns {
		if ok, err := doublestar.Match(pattern, strings.TrimPrefix(u.Path, "/")); err == nil && ok {
			return true
		}
	}
	return false
}

func (p *Pipeline) download(ctx context.Context, rawURL, dest string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("building request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetching: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	if resp.ContentLength > 0 && p.maxBytes > 0 && resp.ContentLength > p.maxBytes {
		return 0, fmt.Errorf("file size %d exceeds limit %d", resp.ContentLength, p.maxBytes)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("creating image dir: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if isPhoto(contentType) {
		return p.writeProcessed(resp.Body, dest)
	}
	return p.writeRaw(resp.Body, dest)
}

// isPhoto reports whether the content type carries EXIF worth normalizing.
func isPhoto(contentType string) bool {
	switch {
	case strings.HasPrefix(contentType, "image/jpeg"):
		return true
	case strings.HasPrefix(contentType, "image/tiff"):
		return true
	}
	return false
}

// writeProcessed buffers the photo, bakes in the EXIF orientation, strips
// metadata, and caps the width when one is configured. The size guard in
// download bounds the buffering. A photo that cannot be decoded is never
// persisted: its metadata would survive intact.
func (p *Pipeline) writeProcessed(body io.Reader, dest string) (int64, error) {
	var src io.Reader = body
	if p.maxBytes > 0 {
		src = io.LimitReader(body, p.maxBytes+1)
	}
	buf, err := io.ReadAll(src)
	if err != nil {
		return 0, fmt.Errorf("reading body: %w", err)
	}
	if p.maxBytes > 0 && int64(len(buf)) > p.maxBytes {
		return 0, fmt.Errorf("file size exceeds limit %d", p.maxBytes)
	}

	out, err := p.process(buf)
	if err != nil {
		return 0, fmt.Errorf("processing photo: %w", err)
	}

	if err := os.WriteFile(dest, out, 0644); err != nil {
		return 0, fmt.Errorf("writing image: %w", err)
	}
	return int64(len(out)), nil
}

func (p *Pipeline) process(buf []byte) ([]byte, error) {
	var (
		img *vips.ImageRef
		err error
	)
	if p.width > 0 {
		img, err = vips.NewThumbnailFromBuffer(buf, p.width, 0, vips.InterestingNone)
	} else {
		img, err = vips.NewImageFromBuffer(buf)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding: %w", err)
	}
	defer img.Close()

	if err := img.AutoRotate(); err != nil {
		return nil, fmt.Errorf("autorotate: %w", err)
	}

	params := vips.NewJpegExportParams()
	params.StripMetadata = true
	params.Quality = 90

	out, _, err := img.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return out, nil
}

// writeRaw streams the body to disk unchanged, removing the partial file
// on failure.
func (p *Pipeline) writeRaw(body io.Reader, dest string) (int64, error) {
	f, err := os.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}

	var src io.Reader = body
	if p.maxBytes > 0 {
		src = io.LimitReader(body, p.maxBytes+1)
	}

	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && p.maxBytes > 0 && n > p.maxBytes {
		err = fmt.Errorf("file size exceeds limit %d", p.maxBytes)
	}
	if err != nil {
		os.Remove(dest)
		return 0, fmt.Errorf("writing file: %w", err)
	}
	return n, nil
}
