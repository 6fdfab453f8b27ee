package images

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agini/astro-notion-blog/internal/config"
)

// libvips cannot be restarted once shut down, so tests share one startup
// and leave shutdown to process exit.
var vipsOnce sync.Once

func startVips() {
	vipsOnce.Do(Startup)
}

func newTestPipeline(t *testing.T) *Pipeline {
	t.Helper()
	return &Pipeline{
		httpClient: http.DefaultClient,
		dir:        t.TempDir(),
		maxBytes:   1 << 20,
	}
}

func newTestTracker(t *testing.T) *StateTracker {
	t.Helper()
	return &StateTracker{
		filePath: filepath.Join(t.TempDir(), "images-test.json"),
		state: &downloadState{
			ImageDir: "test",
			Files:    make(map[string]*FileState),
		},
	}
}

func TestDestPath(t *testing.T) {
	p := &Pipeline{dir: "public/notion"}

	tests := []struct {
		name    string
		url     string
		want    string
		wantErr bool
	}{
		{
			name: "hosted file keeps object dir",
			url:  "https://files.example.com/secure/abc-123/photo.png?sig=xyz",
			want: filepath.Join("public/notion", "abc-123", "photo.png"),
		},
		{
			name: "percent-encoded filename is decoded",
			url:  "https://files.example.com/abc-123/my%20photo.jpg",
			want: filepath.Join("public/notion", "abc-123", "my photo.jpg"),
		},
		{
			name:    "single segment path",
			url:     "https://example.com/photo.png",
			wantErr: true,
		},
		{
			name:    "non-http scheme",
			url:     "data:image/png;base64,AAAA",
			wantErr: true,
		},
		{
			name:    "unparseable url",
			url:     "http://exa mple.com/a/b.png",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.destPath(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFetch_StoresRawCopyByteExact(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(payload)
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	res := p.Fetch(context.Background(), srv.URL+"/obj-1/pic.png")

	require.Equal(t, OutcomeStored, res.Outcome)
	assert.Equal(t, int64(len(payload)), res.SizeBytes)

	got, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestFetch_NonOKStatusSkipsWithoutFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	res := p.Fetch(context.Background(), srv.URL+"/obj-1/pic.png")

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	_, err := os.Stat(filepath.Join(p.dir, "obj-1", "pic.png"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_UnreachableHostSkips(t *testing.T) {
	p := newTestPipeline(t)
	res := p.Fetch(context.Background(), "http://127.0.0.1:1/obj/pic.png")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
}

func TestFetch_SkipPatterns(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	p.skipPatterns = []string{"**/*.gif"}

	res := p.Fetch(context.Background(), srv.URL+"/obj-1/anim.gif")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	assert.False(t, called)
}

func TestFetch_OversizedBodySkips(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(make([]byte, 256))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	p.maxBytes = 100

	res := p.Fetch(context.Background(), srv.URL+"/obj-1/big.bin")
	assert.Equal(t, OutcomeSkipped, res.Outcome)
	_, err := os.Stat(filepath.Join(p.dir, "obj-1", "big.bin"))
	assert.True(t, os.IsNotExist(err))
}

func TestFetch_SecondRunServedFromState(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	p.state = newTestTracker(t)

	url := srv.URL + "/obj-1/pic.png"

	first := p.Fetch(context.Background(), url)
	require.Equal(t, OutcomeStored, first.Outcome)

	second := p.Fetch(context.Background(), url)
	assert.Equal(t, OutcomeCached, second.Outcome)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, 1, hits)
}

func TestFetch_StateIgnoredWhenFileRemoved(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("img"))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	p.state = newTestTracker(t)

	url := srv.URL + "/obj-1/pic.png"
	first := p.Fetch(context.Background(), url)
	require.Equal(t, OutcomeStored, first.Outcome)

	require.NoError(t, os.Remove(first.Path))

	second := p.Fetch(context.Background(), url)
	assert.Equal(t, OutcomeStored, second.Outcome)
}

func TestNewPipeline_UsesConfiguredTimeout(t *testing.T) {
	cfg := &config.ImagesConfig{Dir: t.TempDir(), TimeoutMs: 2500}
	p := NewPipeline(cfg, nil)
	assert.Equal(t, 2500*time.Millisecond, p.httpClient.Timeout)
}

// exifOrientedJPEG encodes a width x height image and splices in an APP1
// segment whose EXIF orientation tag is 6 (rotate 90 clockwise to view).
func exifOrientedJPEG(t *testing.T, width, height int) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	encoded := buf.Bytes()
	require.Equal(t, []byte{0xFF, 0xD8}, encoded[:2])

	app1 := []byte{
		0xFF, 0xE1, // APP1 marker
		0x00, 0x22, // segment length, big endian
		'E', 'x', 'i', 'f', 0x00, 0x00,
		'I', 'I', 0x2A, 0x00, // little-endian TIFF header
		0x08, 0x00, 0x00, 0x00, // IFD0 offset
		0x01, 0x00, // one entry
		0x12, 0x01, // tag 0x0112, orientation
		0x03, 0x00, // type SHORT
		0x01, 0x00, 0x00, 0x00, // count
		0x06, 0x00, 0x00, 0x00, // value 6
		0x00, 0x00, 0x00, 0x00, // no next IFD
	}

	out := make([]byte, 0, len(encoded)+len(app1))
	out = append(out, encoded[:2]...)
	out = append(out, app1...)
	out = append(out, encoded[2:]...)
	return out
}

// hasAPP1 walks the JPEG header segments looking for an EXIF APP1 marker.
func hasAPP1(t *testing.T, data []byte) bool {
	t.Helper()
	require.GreaterOrEqual(t, len(data), 4)

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xFF {
			break
		}
		marker := data[i+1]
		if marker == 0xDA { // start of scan, no more header segments
			break
		}
		if marker == 0xE1 {
			return true
		}
		length := int(data[i+2])<<8 | int(data[i+3])
		i += 2 + length
	}
	return false
}

func TestProcess_BakesOrientationAndStripsMetadata(t *testing.T) {
	startVips()

	p := newTestPipeline(t)
	src := exifOrientedJPEG(t, 8, 4)

	out, err := p.process(src)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Width, "orientation should be baked into pixels")
	assert.Equal(t, 8, cfg.Height)
	assert.False(t, hasAPP1(t, out), "EXIF segment should be stripped")
}

func TestFetch_UndecodablePhotoSkipsWithoutFile(t *testing.T) {
	startVips()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Write([]byte("not a jpeg at all"))
	}))
	defer srv.Close()

	p := newTestPipeline(t)
	res := p.Fetch(context.Background(), srv.URL+"/obj-1/broken.jpg")

	assert.Equal(t, OutcomeSkipped, res.Outcome)
	_, err := os.Stat(filepath.Join(p.dir, "obj-1", "broken.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveState_WritesTrackerFile(t *testing.T) {
	p := newTestPipeline(t)
	p.state = newTestTracker(t)
	p.state.MarkDownloaded("https://example.com/a/b.png", "imgs/a/b.png", 7)

	require.NoError(t, p.SaveState())

	_, err := os.Stat(p.state.filePath)
	assert.NoError(t, err)
}

func TestNewStateTracker_CorruptStateStartsEmpty(t *testing.T) {
	configHome := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", configHome)

	imageDir := "public/notion"
	path := filepath.Join(configHome, "notionblog", "images-"+HashString(imageDir)[:12]+".json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	st, err := NewStateTracker(imageDir)
	require.NoError(t, err)
	assert.Equal(t, 0, st.Count())
}

func TestStateTracker_SaveAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "images-test.json")

	st := &StateTracker{
		filePath: path,
		state:    &downloadState{ImageDir: "imgs", Files: make(map[string]*FileState)},
	}
	st.MarkDownloaded("https://example.com/a/b.png", "imgs/a/b.png", 42)
	require.NoError(t, st.Save())

	reloaded := &StateTracker{
		filePath: path,
		state:    &downloadState{ImageDir: "imgs", Files: make(map[string]*FileState)},
	}
	require.NoError(t, reloaded.load())
	assert.Equal(t, 1, reloaded.Count())
	assert.Equal(t, int64(42), reloaded.TotalBytes())
}
