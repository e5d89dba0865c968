package mediainfo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"media-assistant/internal/library"
	"media-assistant/internal/logging"
)

// ErrProberUnavailable is returned when ffprobe cannot be found.
var ErrProberUnavailable = errors.New("ffprobe unavailable")

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 2 * time.Minute

// Prober runs ffprobe and converts its JSON output.
type Prober struct {
	path    string
	timeout time.Duration
}

// NewProber resolves the ffprobe executable. An empty path means "ffprobe"
// from PATH.
func NewProber(path string) (*Prober, error) {
	if path == "" {
		path = "ffprobe"
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProberUnavailable, err)
	}
	return &Prober{path: resolved, timeout: DefaultProbeTimeout}, nil
}

// Path returns the resolved ffprobe executable.
func (p *Prober) Path() string {
	return p.path
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Index     int               `json:"index"`
	CodecType string            `json:"codec_type"`
	CodecName string            `json:"codec_name"`
	Duration  string            `json:"duration"`
	Tags      map[string]string `json:"tags"`
}

// Probe describes the media at input, a file path or URL.
func (p *Prober) Probe(ctx context.Context, input string) (library.MediaInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.path,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		input,
	)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return library.MediaInfo{}, ctxErr
		}
		return library.MediaInfo{}, fmt.Errorf("ffprobe %s: %w - %s", input, err, strings.TrimSpace(stderr.String()))
	}
	logging.Debug("ffprobe %s completed in %v", input, time.Since(start))

	return ParseProbeOutput(stdout.Bytes())
}

// ParseProbeOutput converts ffprobe -print_format json output. The runtime is
// the container duration, falling back to the longest stream.
func ParseProbeOutput(data []byte) (library.MediaInfo, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return library.MediaInfo{}, fmt.Errorf("decode ffprobe output: %w", err)
	}

	info := library.MediaInfo{RunTime: parseSeconds(out.Format.Duration)}
	var longest time.Duration
	for _, s := range out.Streams {
		streamType := s.CodecType
		switch streamType {
		case library.StreamAudio:
			info.HasAudioStream = true
		case library.StreamVideo, library.StreamSubtitle:
		default:
			continue
		}
		longest = max(longest, parseSeconds(s.Duration))
		info.Streams = append(info.Streams, library.MediaStream{
			Index:    s.Index,
			Type:     streamType,
			Codec:    s.CodecName,
			Language: tag(s.Tags, "language"),
			Title:    tag(s.Tags, "title"),
		})
	}
	if info.RunTime == 0 {
		info.RunTime = longest
	}
	return info, nil
}

func tag(tags map[string]string, key string) string {
	for k, v := range tags {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

func parseSeconds(s string) time.Duration {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
