package indexer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeFiles(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestParallelWalkerFindsPlayableFiles(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root,
		"Show/Season 1/Show S01E01.mkv",
		"Show/Season 1/Show S01E01.en.srt",
		"Show/Season 2/Show S02E01.strm",
		"Show/.hidden/secret.mkv",
		"Show/.trickplay.mkv",
		"Show/folder.jpg",
		"Other/Deep/Deeper/clip.mp4",
	)

	config := DefaultParallelWalkerConfig()
	config.NumWorkers = 2
	walker := NewParallelWalker(root, config)

	files, err := walker.Walk(context.Background())
	if err != nil {
		t.Fatalf("Walk() error = %v", err)
	}

	want := []string{
		filepath.Join(root, "Other", "Deep", "Deeper", "clip.mp4"),
		filepath.Join(root, "Show", "Season 1", "Show S01E01.mkv"),
		filepath.Join(root, "Show", "Season 2", "Show S02E01.strm"),
	}
	if len(files) != len(want) {
		t.Fatalf("Walk() returned %d files, want %d: %+v", len(files), len(want), files)
	}
	for i, f := range files {
		if f.Path != want[i] {
			t.Errorf("files[%d] = %q, want %q", i, f.Path, want[i])
		}
		if f.Size != 4 {
			t.Errorf("files[%d].Size = %d, want 4", i, f.Size)
		}
	}

	nFiles, folders, errs := walker.Stats()
	if nFiles != 3 || errs != 0 {
		t.Errorf("Stats() files=%d errors=%d, want 3 and 0", nFiles, errs)
	}
	// root, Show, Season 1, Season 2, Other, Deep, Deeper
	if folders != 7 {
		t.Errorf("Stats() folders = %d, want 7", folders)
	}
}

func TestParallelWalkerMissingRoot(t *testing.T) {
	walker := NewParallelWalker(filepath.Join(t.TempDir(), "missing"), DefaultParallelWalkerConfig())
	if _, err := walker.Walk(context.Background()); err == nil {
		t.Fatal("expected an error for a missing root")
	}
}

func TestParallelWalkerCancelled(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, "a/b.mkv")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewParallelWalker(root, DefaultParallelWalkerConfig()).Walk(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Walk() error = %v, want context.Canceled", err)
	}
}

func TestDefaultParallelWalkerConfigOverride(t *testing.T) {
	t.Setenv("INDEX_WORKERS", "7")
	if got := DefaultParallelWalkerConfig().NumWorkers; got != 7 {
		t.Errorf("NumWorkers = %d, want 7", got)
	}
	t.Setenv("INDEX_WORKERS", "nope")
	if got := DefaultParallelWalkerConfig().NumWorkers; got != 3 {
		t.Errorf("NumWorkers = %d, want 3", got)
	}
}
