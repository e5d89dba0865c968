package fingerprint

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-assistant/internal/library"
	"media-assistant/internal/testsupport"
)

const engineScript = `#!/bin/sh
cat > /dev/null
case "$1" in
title)  echo '{"cached":true}' ;;
season) echo '{"data":{"episodes":2}}' ;;
derive) echo '{"markers":[{"type":"IntroStart","positionMs":1000},{"type":"IntroEnd","positionMs":91000}]}' ;;
*)      echo "unknown command" >&2; exit 2 ;;
esac
`

func writeEngine(t *testing.T, script string) string {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	path := filepath.Join(t.TempDir(), "engine")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestNewExecEngineUnavailable(t *testing.T) {
	_, err := NewExecEngine("")
	assert.ErrorIs(t, err, ErrEngineUnavailable)

	_, err = NewExecEngine(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestExecEngineProtocol(t *testing.T) {
	engine, err := NewExecEngine(writeEngine(t, engineScript))
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, engine.Timeout())

	ctx := context.Background()
	season := library.Item{ID: 10, Type: library.TypeSeason, Path: "/media/tv/Show/Season 1"}
	episode := library.Item{ID: 11, Type: library.TypeEpisode, Path: "/media/tv/Show/Season 1/Show S01E01.mkv"}

	cached, err := engine.CreateTitleFingerprint(ctx, episode, 10)
	require.NoError(t, err)
	assert.True(t, cached)

	sc, err := engine.ComputeSeasonContext(ctx, season, []library.Item{episode}, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), sc.SeasonID)
	assert.JSONEq(t, `{"episodes":2}`, string(sc.Data))

	markers, err := engine.DeriveMarkers(ctx, season, sc, episode)
	require.NoError(t, err)
	assert.Equal(t, []library.Marker{
		{ItemID: 11, Type: library.MarkerIntroStart, Position: time.Second},
		{ItemID: 11, Type: library.MarkerIntroEnd, Position: 91 * time.Second},
	}, markers)
}

func TestExecEngineReportsPermanentFailure(t *testing.T) {
	path := writeEngine(t, "#!/bin/sh\ncat > /dev/null\necho '{\"failed\":true,\"reason\":\"no intro\"}'\n")
	engine, err := NewExecEngine(path)
	require.NoError(t, err)

	_, err = engine.DeriveMarkers(context.Background(), library.Item{ID: 1}, &SeasonContext{SeasonID: 1}, library.Item{ID: 2})
	var permanent *PermanentFailure
	require.True(t, errors.As(err, &permanent))
	assert.Equal(t, "no intro", permanent.Reason)
}

func TestExecEngineTimeout(t *testing.T) {
	path := writeEngine(t, "#!/bin/sh\ncat > /dev/null\nexec sleep 5\n")
	engine, err := NewExecEngine(path)
	require.NoError(t, err)
	engine.SetTimeout(50 * time.Millisecond)

	_, err = engine.CreateTitleFingerprint(context.Background(), library.Item{ID: 1}, 10)
	require.ErrorIs(t, err, ErrEngineTimeout)
	assert.NotErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsCancellation(context.Background(), err))
}

func TestExecEngineCallerDeadlineIsCancellation(t *testing.T) {
	path := writeEngine(t, "#!/bin/sh\ncat > /dev/null\nexec sleep 5\n")
	engine, err := NewExecEngine(path)
	require.NoError(t, err)
	engine.SetTimeout(time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = engine.CreateTitleFingerprint(ctx, library.Item{ID: 1}, 10)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsCancellation(ctx, err))
}

func TestExecEngineTimeoutKeepsSeasonGoing(t *testing.T) {
	counter := filepath.Join(t.TempDir(), "derives")
	path := writeEngine(t, `#!/bin/sh
cat > /dev/null
case "$1" in
season) echo '{"data":{}}' ;;
derive) echo x >> '`+counter+`'; exec sleep 5 ;;
esac
`)
	engine, err := NewExecEngine(path)
	require.NoError(t, err)
	engine.SetTimeout(200 * time.Millisecond)

	idx := testsupport.NewIndex()
	show := idx.AddSeries(5, "/media/tv", "Show", 3)
	seq := NewSequencer(engine, idx, newStore(1))

	var last float64
	err = seq.RunSeasonSequence(context.Background(), show.Seasons[0], func(p float64) { last = p })
	require.NoError(t, err)
	assert.Equal(t, 1.0, last)

	data, err := os.ReadFile(counter)
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(data), "x"), "every episode should be attempted")
}

func TestExecEngineCommandError(t *testing.T) {
	path := writeEngine(t, "#!/bin/sh\necho boom >&2\nexit 3\n")
	engine, err := NewExecEngine(path)
	require.NoError(t, err)

	_, err = engine.CreateTitleFingerprint(context.Background(), library.Item{ID: 1}, 10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.False(t, IsCancellation(context.Background(), err))
}
