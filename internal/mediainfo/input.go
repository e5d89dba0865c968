package mediainfo

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strings"

	"media-assistant/internal/filesystem"
	"media-assistant/internal/library"
)

// ErrShortcutUnresolved is returned for shortcut items when shortcut
// resolution is disabled or the shortcut file names no target.
var ErrShortcutUnresolved = errors.New("shortcut not resolved")

// InputResolver maps an item to the path or URL handed to ffmpeg and
// ffprobe.
type InputResolver struct {
	// ResolveShortcuts enables reading the target of .strm shortcut files.
	ResolveShortcuts bool
	Retry            filesystem.RetryConfig
}

// NewInputResolver returns a resolver with the default retry config.
func NewInputResolver(resolveShortcuts bool) *InputResolver {
	return &InputResolver{ResolveShortcuts: resolveShortcuts, Retry: filesystem.DefaultRetryConfig()}
}

// Input returns the media input of item. Regular files are their own input;
// shortcuts resolve to the first non-empty, non-comment line of the file.
func (r *InputResolver) Input(item library.Item) (string, error) {
	if !item.IsShortcut {
		return item.Path, nil
	}
	if r == nil || !r.ResolveShortcuts {
		return "", fmt.Errorf("%s: %w", item.Path, ErrShortcutUnresolved)
	}

	data, err := filesystem.ReadFileWithRetry(item.Path, r.Retry)
	if err != nil {
		return "", fmt.Errorf("read shortcut %s: %w", item.Path, err)
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line, nil
	}
	return "", fmt.Errorf("%s: empty shortcut: %w", item.Path, ErrShortcutUnresolved)
}
