// Package probe implements the audio probe & tag extractor (C2): it shells
// out to an external transcoder tool configured at startup and parses its
// structured report for duration, codec, bitrate, and tags.
package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pezzottify/catalog-engine/internal/model"
)

// ErrProbeFailed is returned when the transcoder exits non-zero or its
// output cannot be parsed.
var ErrProbeFailed = errors.New("probe: transcoder invocation failed")

// ErrTranscoderMissing is returned by NewProber when the configured
// transcoder path does not resolve to an executable — a fatal startup error
// per spec §4.2.
var ErrTranscoderMissing = errors.New("probe: transcoder not found")

// Prober shells out to an ffprobe-compatible transcoder tool.
type Prober struct {
	transcoderPath string
}

// NewProber validates that transcoderPath resolves to a runnable executable
// and returns a Prober bound to it. Absence of the tool is a fatal startup
// error the caller should treat as non-recoverable.
func NewProber(transcoderPath string) (*Prober, error) {
	if _, err := exec.LookPath(transcoderPath); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTranscoderMissing, transcoderPath, err)
	}

	return &Prober{transcoderPath: transcoderPath}, nil
}

type probeFormat struct {
	Duration string            `json:"duration"`
	BitRate  string            `json:"bit_rate"`
	Tags     map[string]string `json:"tags"`
}

type probeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
}

type probeReport struct {
	Format  *probeFormat  `json:"format"`
	Streams []probeStream `json:"streams"`
}

// Probe invokes the transcoder's structured-report mode and returns duration,
// codec, bitrate, and sample rate. Fails with ErrProbeFailed on non-zero
// exit or unparseable output.
func (p *Prober) Probe(ctx context.Context, path string) (model.ProbeResult, error) {
	report, err := p.runProbe(ctx, path)
	if err != nil {
		return model.ProbeResult{}, err
	}

	result := model.ProbeResult{}

	if report.Format != nil {
		if seconds, parseErr := strconv.ParseFloat(report.Format.Duration, 64); parseErr == nil {
			result.DurationMs = int64(seconds * 1000)
		}

		if bitsPerSec, parseErr := strconv.ParseInt(report.Format.BitRate, 10, 64); parseErr == nil {
			result.Bitrate = bitsPerSec / 1000
		}
	}

	for _, stream := range report.Streams {
		if stream.CodecType != "audio" {
			continue
		}

		result.Codec = stream.CodecName

		if sampleRate, parseErr := strconv.ParseInt(stream.SampleRate, 10, 64); parseErr == nil {
			result.SampleRate = sampleRate
		}

		break
	}

	if result.DurationMs == 0 && result.Codec == "" {
		return model.ProbeResult{}, fmt.Errorf("%w: no parseable audio stream in %s", ErrProbeFailed, path)
	}

	return result, nil
}

// recognizedTagKeys are the lowercased tag keys the ingestion manager cares
// about; track may carry "n/total" and date is reduced to a four-char year
// by the caller.
var recognizedTagKeys = []string{"artist", "album", "title", "track", "disc", "date"} //nolint:gochecknoglobals // Fixed recognized-key set from spec §4.2.

// ExtractTags invokes the same transcoder report and returns the recognized
// tag keys, lowercased, exactly as emitted by the container's tag map.
func (p *Prober) ExtractTags(ctx context.Context, path string) (map[string]string, error) {
	report, err := p.runProbe(ctx, path)
	if err != nil {
		return nil, err
	}

	tags := map[string]string{}

	if report.Format == nil {
		return tags, nil
	}

	for key, value := range report.Format.Tags {
		lowerKey := strings.ToLower(key)

		for _, recognized := range recognizedTagKeys {
			if lowerKey == recognized {
				tags[recognized] = value

				break
			}
		}
	}

	return tags, nil
}

// ErrTranscodeFailed is returned when the transcoder exits non-zero while
// converting a file.
var ErrTranscodeFailed = errors.New("probe: transcoder invocation failed")

// Transcode invokes the same configured tool in encode mode, producing OGG
// Vorbis audio at bitrateKbps at destPath. destPath's parent directory must
// already exist.
func (p *Prober) Transcode(ctx context.Context, srcPath, destPath string, bitrateKbps int64) error {
	cmd := exec.CommandContext(ctx, p.transcoderPath,
		"-v", "quiet",
		"-y",
		"-i", srcPath,
		"-vn",
		"-c:a", "libvorbis",
		"-b:a", fmt.Sprintf("%dk", bitrateKbps),
		destPath,
	)

	var stderr bytes.Buffer

	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s: %s: %w", ErrTranscodeFailed, srcPath, stderr.String(), err)
	}

	return nil
}

func (p *Prober) runProbe(ctx context.Context, path string) (*probeReport, error) {
	cmd := exec.CommandContext(ctx, p.transcoderPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout bytes.Buffer

	cmd.Stdout = &stdout

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrProbeFailed, path, err)
	}

	var report probeReport
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		return nil, fmt.Errorf("%w: parse report for %s: %w", ErrProbeFailed, path, err)
	}

	return &report, nil
}
