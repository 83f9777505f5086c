package probe_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pezzottify/catalog-engine/internal/probe"
)

const fakeProbeReport = `{
	"format": {
		"duration": "180.500000",
		"bit_rate": "192000",
		"tags": {
			"ARTIST": "Boards of Canada",
			"ALBUM": "Geogaddi",
			"title": "1969",
			"track": "4/17",
			"date": "2002-02-04"
		}
	},
	"streams": [
		{"codec_type": "audio", "codec_name": "mp3", "sample_rate": "44100"}
	]
}`

// writeFakeTranscoder writes a shell script masquerading as an ffprobe-style
// transcoder that always emits fakeProbeReport, and returns its path.
func writeFakeTranscoder(t *testing.T) string {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake transcoder script requires a POSIX shell")
	}

	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-ffprobe.sh")

	script := "#!/bin/sh\ncat <<'EOF'\n" + fakeProbeReport + "\nEOF\n"
	require.NoError(t, os.WriteFile(scriptPath, []byte(script), 0o755))

	return scriptPath
}

func TestProberProbe(t *testing.T) {
	t.Parallel()

	scriptPath := writeFakeTranscoder(t)

	prober, err := probe.NewProber(scriptPath)
	require.NoError(t, err)

	result, err := prober.Probe(context.Background(), "irrelevant.mp3")
	require.NoError(t, err)

	assert.Equal(t, int64(180500), result.DurationMs)
	assert.Equal(t, int64(192), result.Bitrate)
	assert.Equal(t, "mp3", result.Codec)
	assert.Equal(t, int64(44100), result.SampleRate)
}

func TestProberExtractTags(t *testing.T) {
	t.Parallel()

	scriptPath := writeFakeTranscoder(t)

	prober, err := probe.NewProber(scriptPath)
	require.NoError(t, err)

	tags, err := prober.ExtractTags(context.Background(), "irrelevant.mp3")
	require.NoError(t, err)

	assert.Equal(t, "Boards of Canada", tags["artist"])
	assert.Equal(t, "Geogaddi", tags["album"])
	assert.Equal(t, "1969", tags["title"])
	assert.Equal(t, "4/17", tags["track"])
	assert.Equal(t, "2002-02-04", tags["date"])
}

func TestNewProberMissingTranscoder(t *testing.T) {
	t.Parallel()

	_, err := probe.NewProber("definitely-not-a-real-transcoder-binary")
	require.ErrorIs(t, err, probe.ErrTranscoderMissing)
}
