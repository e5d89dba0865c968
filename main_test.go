package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/startup"
	"media-assistant/internal/tasks"
)

func testConfig(t *testing.T) *startup.Config {
	t.Helper()
	dir := t.TempDir()
	return &startup.Config{
		DataDir:      dir,
		CacheDir:     filepath.Join(dir, "cache"),
		OptionsFile:  filepath.Join(dir, "options.toml"),
		DatabasePath: filepath.Join(dir, "assistant.db"),
		LockPath:     filepath.Join(dir, ".lock"),
		FFmpegPath:   "media-assistant-missing-ffmpeg",
		FFprobePath:  "media-assistant-missing-ffprobe",
	}
}

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "run", "tasks", "clear-intro", "scope"})
}

func TestRootCommandRejectsInvalidLogLevel(t *testing.T) {
	root := newRootCommand()
	root.SetArgs([]string{"--log-level", "chatty", "scope"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --log-level")
}

func TestOpenAppWithoutTools(t *testing.T) {
	cfg := testConfig(t)
	a, err := openApp(context.Background(), cfg)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{tasks.LibraryScanTaskName, tasks.IntroSkipClearTaskName}, a.tasks.Names())
	assert.Nil(t, a.thumbs)
	assert.Len(t, a.selection.Pipelines(), 5)
	for _, p := range a.selection.Pipelines() {
		assert.NotNil(t, p.Scope().Load(), "%s scope is published by the first apply", p.Name)
	}
}

func TestOpenAppHoldsDataDirLock(t *testing.T) {
	cfg := testConfig(t)
	a, err := openApp(context.Background(), cfg)
	require.NoError(t, err)

	_, err = openApp(context.Background(), cfg)
	assert.ErrorIs(t, err, errLocked)

	a.Close()
	b, err := openApp(context.Background(), cfg)
	require.NoError(t, err)
	b.Close()
}

func TestNewTableRendersRows(t *testing.T) {
	tw := newTable("Task", "Schedule")
	tw.AppendRow([]interface{}{"LibraryScan", "manual"})
	out := tw.Render()
	assert.Contains(t, out, "LibraryScan")
	assert.Contains(t, out, "manual")
}
