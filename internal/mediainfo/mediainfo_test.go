package mediainfo

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/library"
)

const probeJSON = `{
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "duration": "2700.5"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "tags": {"language": "eng"}},
    {"index": 2, "codec_type": "subtitle", "codec_name": "subrip", "tags": {"LANGUAGE": "ger", "title": "Forced"}},
    {"index": 3, "codec_type": "attachment", "codec_name": "ttf"}
  ],
  "format": {"duration": "2701.000000"}
}`

func TestParseProbeOutput(t *testing.T) {
	info, err := ParseProbeOutput([]byte(probeJSON))
	require.NoError(t, err)

	assert.Equal(t, 2701*time.Second, info.RunTime)
	assert.True(t, info.HasAudioStream)
	require.Len(t, info.Streams, 3)
	assert.Equal(t, library.MediaStream{Index: 1, Type: "audio", Codec: "aac", Language: "eng"}, info.Streams[1])
	assert.Equal(t, "ger", info.Streams[2].Language)
	assert.Equal(t, "Forced", info.Streams[2].Title)
}

func TestParseProbeOutputFallsBackToStreamDuration(t *testing.T) {
	info, err := ParseProbeOutput([]byte(`{"streams":[{"index":0,"codec_type":"video","duration":"12.5"}],"format":{}}`))
	require.NoError(t, err)
	assert.Equal(t, 12500*time.Millisecond, info.RunTime)
	assert.False(t, info.HasAudioStream)
}

func TestParseProbeOutputInvalid(t *testing.T) {
	_, err := ParseProbeOutput([]byte("not json"))
	assert.Error(t, err)
}

func TestInputResolver(t *testing.T) {
	dir := t.TempDir()
	shortcut := filepath.Join(dir, "stream.strm")
	require.NoError(t, os.WriteFile(shortcut, []byte("\n# comment\nhttp://example.invalid/video.mkv\n"), 0o644))
	empty := filepath.Join(dir, "empty.strm")
	require.NoError(t, os.WriteFile(empty, []byte("\n\n"), 0o644))

	t.Run("regular file", func(t *testing.T) {
		in, err := NewInputResolver(false).Input(library.Item{Path: "/media/a.mkv"})
		require.NoError(t, err)
		assert.Equal(t, "/media/a.mkv", in)
	})

	t.Run("shortcut disabled", func(t *testing.T) {
		_, err := NewInputResolver(false).Input(library.Item{Path: shortcut, IsShortcut: true})
		assert.ErrorIs(t, err, ErrShortcutUnresolved)
	})

	t.Run("shortcut resolved", func(t *testing.T) {
		in, err := NewInputResolver(true).Input(library.Item{Path: shortcut, IsShortcut: true})
		require.NoError(t, err)
		assert.Equal(t, "http://example.invalid/video.mkv", in)
	})

	t.Run("empty shortcut", func(t *testing.T) {
		_, err := NewInputResolver(true).Input(library.Item{Path: empty, IsShortcut: true})
		assert.ErrorIs(t, err, ErrShortcutUnresolved)
	})
}

func TestNewProberUnavailable(t *testing.T) {
	_, err := NewProber(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrProberUnavailable)
}

// writeFakeProbe installs a shell script standing in for ffprobe.
func writeFakeProbe(t *testing.T, script string) *Prober {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "ffprobe")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	p, err := NewProber(path)
	require.NoError(t, err)
	return p
}

type fakeStore struct {
	infos map[int64]library.MediaInfo
	err   error
}

func (s *fakeStore) UpdateMediaInfo(_ context.Context, id int64, info library.MediaInfo) error {
	if s.err != nil {
		return s.err
	}
	if s.infos == nil {
		s.infos = map[int64]library.MediaInfo{}
	}
	s.infos[id] = info
	return nil
}

func TestExtractorProcess(t *testing.T) {
	prober := writeFakeProbe(t, "#!/bin/sh\ncat <<'EOF'\n"+probeJSON+"\nEOF\n")
	store := &fakeStore{}
	ex := NewExtractor(prober, store, NewInputResolver(false))
	require.True(t, ex.Available())

	require.NoError(t, ex.Process(context.Background(), library.Item{ID: 7, Path: "/media/a.mkv"}))
	assert.Equal(t, 2701*time.Second, store.infos[7].RunTime)
	assert.True(t, store.infos[7].HasAudioStream)
}

func TestExtractorProbeFailure(t *testing.T) {
	prober := writeFakeProbe(t, "#!/bin/sh\necho 'Invalid data found' >&2\nexit 1\n")
	store := &fakeStore{}
	ex := NewExtractor(prober, store, NewInputResolver(false))

	err := ex.Process(context.Background(), library.Item{ID: 7, Path: "/media/a.mkv"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid data found")
	assert.Empty(t, store.infos)
}

func TestExtractorStoreError(t *testing.T) {
	prober := writeFakeProbe(t, "#!/bin/sh\ncat <<'EOF'\n"+probeJSON+"\nEOF\n")
	boom := errors.New("boom")
	ex := NewExtractor(prober, &fakeStore{err: boom}, NewInputResolver(false))
	assert.ErrorIs(t, ex.Process(context.Background(), library.Item{ID: 7, Path: "/media/a.mkv"}), boom)
}

func TestExtractorUnavailable(t *testing.T) {
	ex := NewExtractor(nil, &fakeStore{}, nil)
	assert.False(t, ex.Available())
	assert.ErrorIs(t, ex.Process(context.Background(), library.Item{ID: 1}), ErrProberUnavailable)
}
