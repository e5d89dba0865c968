package thumbnail

import (
	"context"
	"image"
	"image/color"
	"image/draw"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"media-assistant/internal/library"
	"media-assistant/internal/mediainfo"
)

type fakeStore struct {
	flags map[int64]bool
}

func (s *fakeStore) SetChapterImages(_ context.Context, id int64, has bool) error {
	if s.flags == nil {
		s.flags = map[int64]bool{}
	}
	s.flags[id] = has
	return nil
}

// writeFakeFFmpeg installs a script that prints a 640x360 BMP frame.
func writeFakeFFmpeg(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	dir := t.TempDir()

	frame := image.NewRGBA(image.Rect(0, 0, 640, 360))
	draw.Draw(frame, frame.Bounds(), &image.Uniform{C: color.RGBA{R: 200, G: 40, B: 40, A: 255}}, image.Point{}, draw.Src)
	framePath := filepath.Join(dir, "frame.bmp")
	f, err := os.Create(framePath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, frame))
	require.NoError(t, f.Close())

	script := "#!/bin/sh\ncat '" + framePath + "'\n"
	path := filepath.Join(dir, "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func writeFailingFFmpeg(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\necho 'moov atom not found' >&2\nexit 1\n"), 0o755))
	return path
}

func TestPositions(t *testing.T) {
	assert.Nil(t, Positions(0))

	p := Positions(100 * time.Second)
	require.Len(t, p, 9)
	assert.Equal(t, 10*time.Second, p[0])
	assert.Equal(t, 50*time.Second, p[4])
	assert.Equal(t, 90*time.Second, p[8])
}

func TestNewGeneratorUnavailable(t *testing.T) {
	_, err := NewGenerator(filepath.Join(t.TempDir(), "missing"), t.TempDir(), &fakeStore{}, nil)
	assert.ErrorIs(t, err, ErrGeneratorUnavailable)

	var g *Generator
	assert.False(t, g.Available())
	assert.ErrorIs(t, g.Process(context.Background(), library.Item{}), ErrGeneratorUnavailable)
}

func TestGeneratorProcess(t *testing.T) {
	store := &fakeStore{}
	g, err := NewGenerator(writeFakeFFmpeg(t), t.TempDir(), store, mediainfo.NewInputResolver(false))
	require.NoError(t, err)
	require.True(t, g.Available())

	item := library.Item{ID: 42, Path: "/media/movies/Film.mkv", RunTime: 90 * time.Minute}
	require.NoError(t, g.Process(context.Background(), item))

	assert.True(t, store.flags[42])
	images, err := g.Images(42)
	require.NoError(t, err)
	require.Len(t, images, 9)
	assert.Equal(t, g.ImagePath(42, 1), images[0])

	img, err := imaging.Open(images[0])
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 320, 180), img.Bounds())

	require.NoError(t, g.Remove(context.Background(), 42))
	assert.False(t, store.flags[42])
	_, err = os.Stat(g.ItemDir(42))
	assert.True(t, os.IsNotExist(err))
}

func TestGeneratorProcessWithoutRunTime(t *testing.T) {
	store := &fakeStore{}
	g, err := NewGenerator(writeFakeFFmpeg(t), t.TempDir(), store, mediainfo.NewInputResolver(false))
	require.NoError(t, err)

	err = g.Process(context.Background(), library.Item{ID: 1, Path: "/media/a.mkv"})
	assert.ErrorIs(t, err, ErrNoRunTime)
	assert.NotContains(t, store.flags, int64(1))
}

func TestGeneratorProcessAllFramesFail(t *testing.T) {
	store := &fakeStore{}
	g, err := NewGenerator(writeFailingFFmpeg(t), t.TempDir(), store, mediainfo.NewInputResolver(false))
	require.NoError(t, err)

	err = g.Process(context.Background(), library.Item{ID: 1, Path: "/media/a.mkv", RunTime: time.Minute})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no frames extracted")
	assert.NotContains(t, store.flags, int64(1))
}

func TestGeneratorUnresolvedShortcut(t *testing.T) {
	g, err := NewGenerator(writeFakeFFmpeg(t), t.TempDir(), &fakeStore{}, mediainfo.NewInputResolver(false))
	require.NoError(t, err)

	err = g.Process(context.Background(), library.Item{ID: 1, Path: "/media/a.strm", IsShortcut: true, RunTime: time.Minute})
	assert.ErrorIs(t, err, mediainfo.ErrShortcutUnresolved)
}

func TestGeneratorCancelled(t *testing.T) {
	g, err := NewGenerator(writeFakeFFmpeg(t), t.TempDir(), &fakeStore{}, mediainfo.NewInputResolver(false))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = g.Process(ctx, library.Item{ID: 1, Path: "/media/a.mkv", RunTime: time.Minute})
	assert.ErrorIs(t, err, context.Canceled)
}
