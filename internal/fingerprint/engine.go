package fingerprint

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync/atomic"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
)

var (
	// ErrEngineUnavailable is returned when the fingerprint engine could not
	// be initialized. The fingerprint pipeline disables itself.
	ErrEngineUnavailable = errors.New("fingerprint engine unavailable")

	// ErrSeasonFailed wraps a failed season context computation.
	ErrSeasonFailed = errors.New("season fingerprint failed")

	// ErrEngineTimeout is returned when one engine invocation outlives the
	// timeout set by SetTimeout while the caller's context is still live.
	ErrEngineTimeout = errors.New("fingerprint engine timed out")
)

// PermanentFailure is returned by an Engine when an episode can never yield
// markers. The episode is recorded as failed and excluded from later runs.
type PermanentFailure struct {
	Reason string
}

func (e *PermanentFailure) Error() string {
	return "intro detection failed: " + e.Reason
}

// SeasonContext is the season-wide result of one fingerprint computation,
// reused for every episode of that season. It is opaque to callers.
type SeasonContext struct {
	SeasonID int64           `json:"seasonId"`
	Data     json.RawMessage `json:"data"`
}

// Engine is the delegated fingerprint engine.
type Engine interface {
	// CreateTitleFingerprint extracts the audio fingerprint of one episode.
	// cached reports whether an existing fingerprint was reused.
	CreateTitleFingerprint(ctx context.Context, episode library.Item, minutes int) (cached bool, err error)
	// ComputeSeasonContext compares the fingerprints of every episode of a
	// season.
	ComputeSeasonContext(ctx context.Context, season library.Item, episodes []library.Item, minutes int) (*SeasonContext, error)
	// DeriveMarkers derives the markers of one episode from its season
	// context.
	DeriveMarkers(ctx context.Context, season library.Item, sc *SeasonContext, episode library.Item) ([]library.Marker, error)
	// SetTimeout sets the timeout applied to each engine invocation.
	SetTimeout(d time.Duration)
	// Timeout returns the current timeout.
	Timeout() time.Duration
}

// ExecEngine runs an external fingerprint engine executable. Requests are
// written to stdin as JSON and responses read from stdout as JSON.
//
//	<engine> title  {"episode":{...},"minutes":10}           -> {"cached":true}
//	<engine> season {"season":{...},"episodes":[...],...}    -> {"data":{...}}
//	<engine> derive {"season":{...},"context":{...},...}     -> {"markers":[...]} | {"failed":true,"reason":"..."}
type ExecEngine struct {
	path    string
	timeout atomic.Int64
}

// NewExecEngine verifies that path resolves to an executable and returns an
// engine running it. An empty path or a missing executable yields
// ErrEngineUnavailable.
func NewExecEngine(path string) (*ExecEngine, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: no engine configured", ErrEngineUnavailable)
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
	}
	e := &ExecEngine{path: resolved}
	e.SetTimeout(DeriveTimeout(1))
	return e, nil
}

// Path returns the resolved engine executable.
func (e *ExecEngine) Path() string {
	return e.path
}

// SetTimeout implements Engine.
func (e *ExecEngine) SetTimeout(d time.Duration) {
	e.timeout.Store(int64(d))
}

// Timeout implements Engine.
func (e *ExecEngine) Timeout() time.Duration {
	return time.Duration(e.timeout.Load())
}

type titleResponse struct {
	Cached bool `json:"cached"`
}

type deriveResponse struct {
	Markers []struct {
		Type       library.MarkerType `json:"type"`
		PositionMs int64              `json:"positionMs"`
	} `json:"markers"`
	Failed bool   `json:"failed"`
	Reason string `json:"reason"`
}

// CreateTitleFingerprint implements Engine.
func (e *ExecEngine) CreateTitleFingerprint(ctx context.Context, episode library.Item, minutes int) (bool, error) {
	var resp titleResponse
	err := e.call(ctx, "title", map[string]any{"episode": episode, "minutes": minutes}, &resp)
	return resp.Cached, err
}

// ComputeSeasonContext implements Engine.
func (e *ExecEngine) ComputeSeasonContext(ctx context.Context, season library.Item, episodes []library.Item, minutes int) (*SeasonContext, error) {
	sc := &SeasonContext{SeasonID: season.ID}
	req := map[string]any{"season": season, "episodes": episodes, "minutes": minutes}
	if err := e.call(ctx, "season", req, sc); err != nil {
		return nil, err
	}
	sc.SeasonID = season.ID
	return sc, nil
}

// DeriveMarkers implements Engine.
func (e *ExecEngine) DeriveMarkers(ctx context.Context, season library.Item, sc *SeasonContext, episode library.Item) ([]library.Marker, error) {
	var resp deriveResponse
	req := map[string]any{"season": season, "context": sc, "episode": episode}
	if err := e.call(ctx, "derive", req, &resp); err != nil {
		return nil, err
	}
	if resp.Failed {
		return nil, &PermanentFailure{Reason: resp.Reason}
	}
	markers := make([]library.Marker, 0, len(resp.Markers))
	for _, m := range resp.Markers {
		markers = append(markers, library.Marker{
			ItemID:   episode.ID,
			Type:     m.Type,
			Position: time.Duration(m.PositionMs) * time.Millisecond,
		})
	}
	return markers, nil
}

func (e *ExecEngine) call(parent context.Context, command string, req, resp any) error {
	timeout := e.Timeout()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", command, err)
	}

	cmd := exec.CommandContext(ctx, e.path, command)
	cmd.Stdin = bytes.NewReader(payload)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if parentErr := parent.Err(); parentErr != nil {
			return parentErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("%w: %s after %v", ErrEngineTimeout, command, timeout)
		}
		return fmt.Errorf("fingerprint %s: %w - %s", command, err, strings.TrimSpace(stderr.String()))
	}
	logging.Debug("Fingerprint engine %s completed in %v", command, time.Since(start))

	if err := json.Unmarshal(stdout.Bytes(), resp); err != nil {
		return fmt.Errorf("decode %s response: %w", command, err)
	}
	return nil
}
