package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
	"media-assistant/internal/mediainfo"
	"media-assistant/internal/metrics"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
)

// ErrGeneratorUnavailable is returned when ffmpeg cannot be found.
var ErrGeneratorUnavailable = errors.New("thumbnail generator unavailable")

// ErrNoRunTime is returned for items whose runtime is unknown.
var ErrNoRunTime = errors.New("item has no runtime")

const (
	// Frames are taken at every 10% of the runtime, skipping 0% and 100%.
	chapterSteps = 10

	imageWidth  = 320
	imageHeight = 180
	jpegQuality = 80

	frameTimeout = time.Minute
)

// Store records whether chapter images exist for an item.
type Store interface {
	SetChapterImages(ctx context.Context, itemID int64, has bool) error
}

// Generator extracts chapter images from videos with ffmpeg.
type Generator struct {
	ffmpeg   string
	cacheDir string
	store    Store
	resolver *mediainfo.InputResolver
	log      *logging.Logger

	// Serializes work on the same item between on-demand and queued runs.
	mu      sync.Mutex
	running map[int64]struct{}
}

// NewGenerator resolves ffmpeg and returns a generator writing below
// cacheDir/thumbnails. An empty ffmpegPath means "ffmpeg" from PATH.
func NewGenerator(ffmpegPath, cacheDir string, store Store, resolver *mediainfo.InputResolver) (*Generator, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	resolved, err := exec.LookPath(ffmpegPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneratorUnavailable, err)
	}

	dir := filepath.Join(cacheDir, "thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}
	logging.Debug("Thumbnail generator: ffmpeg %s, cache dir %s", resolved, dir)

	return &Generator{
		ffmpeg:   resolved,
		cacheDir: dir,
		store:    store,
		resolver: resolver,
		log:      logging.For("VideoThumbnailExtract"),
		running:  make(map[int64]struct{}),
	}, nil
}

// Available reports whether the generator can run. A nil generator is
// unavailable.
func (g *Generator) Available() bool {
	return g != nil
}

// ItemDir returns the directory holding the chapter images of an item.
func (g *Generator) ItemDir(itemID int64) string {
	return filepath.Join(g.cacheDir, strconv.FormatInt(itemID, 10))
}

// ImagePath returns the path of chapter image n (1-based) of an item.
func (g *Generator) ImagePath(itemID int64, n int) string {
	return filepath.Join(g.ItemDir(itemID), fmt.Sprintf("chapter_%02d.jpg", n))
}

// Images lists the chapter images stored for an item, in chapter order.
func (g *Generator) Images(itemID int64) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(g.ItemDir(itemID), "chapter_*.jpg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Positions returns the frame offsets for a runtime.
func Positions(runTime time.Duration) []time.Duration {
	if runTime <= 0 {
		return nil
	}
	positions := make([]time.Duration, 0, chapterSteps-1)
	for i := 1; i < chapterSteps; i++ {
		positions = append(positions, runTime*time.Duration(i)/chapterSteps)
	}
	return positions
}

// Process extracts the chapter images of one item and marks it done. Frames
// that fail are skipped; the item fails only when no frame succeeded.
func (g *Generator) Process(ctx context.Context, item library.Item) error {
	if !g.Available() {
		return ErrGeneratorUnavailable
	}
	if !g.tryStart(item.ID) {
		g.log.Debug("Skipping %s: already in progress", item.Path)
		return nil
	}
	defer g.finish(item.ID)

	positions := Positions(item.RunTime)
	if len(positions) == 0 {
		return fmt.Errorf("%s: %w", item.Path, ErrNoRunTime)
	}

	input, err := g.resolver.Input(item)
	if err != nil {
		return err
	}

	dir := g.ItemDir(item.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create item dir: %w", err)
	}

	written := 0
	for i, pos := range positions {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := g.extractFrame(ctx, input, pos)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.log.Debug("Frame at %v of %s failed: %v", pos, item.Path, err)
			continue
		}
		if err := writeImage(g.ImagePath(item.ID, i+1), img); err != nil {
			return err
		}
		written++
	}

	if written == 0 {
		return fmt.Errorf("no frames extracted from %s", item.Path)
	}
	if err := g.store.SetChapterImages(ctx, item.ID, true); err != nil {
		return err
	}
	g.log.Debug("Extracted %d chapter images for %s", written, item.Path)
	return nil
}

// Remove deletes the chapter images of an item and clears its flag.
func (g *Generator) Remove(ctx context.Context, itemID int64) error {
	if err := os.RemoveAll(g.ItemDir(itemID)); err != nil {
		return err
	}
	return g.store.SetChapterImages(ctx, itemID, false)
}

func (g *Generator) tryStart(id int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[id]; ok {
		return false
	}
	g.running[id] = struct{}{}
	return true
}

func (g *Generator) finish(id int64) {
	g.mu.Lock()
	delete(g.running, id)
	g.mu.Unlock()
}

// extractFrame grabs one frame as BMP, which ffmpeg encodes faster than PNG.
func (g *Generator) extractFrame(ctx context.Context, input string, pos time.Duration) (image.Image, error) {
	ctx, cancel := context.WithTimeout(ctx, frameTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, g.ffmpeg,
		"-hide_banner",
		"-loglevel", "error",
		"-ss", formatPosition(pos),
		"-i", input,
		"-an", "-sn",
		"-vframes", "1",
		"-f", "image2pipe",
		"-vcodec", "bmp",
		"-",
	)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	metrics.ThumbnailFFmpegDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("ffmpeg failed: %v, stderr: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", input)
	}

	img, err := bmp.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ffmpeg output: %w", err)
	}
	return img, nil
}

func writeImage(path string, img image.Image) error {
	thumb := imaging.Fit(img, imageWidth, imageHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return fmt.Errorf("failed to encode chapter image: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func formatPosition(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
