package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
)

// Metadata is what ffprobe reports about the first audio stream.
type Metadata struct {
	DurationSec float64 `json:"duration_sec"`
	SampleRate  int     `json:"sample_rate"`
	Channels    int     `json:"channels"`
	BitDepth    int     `json:"bit_depth"`
	FileSize    int64   `json:"file_size"`
	Codec       string  `json:"codec"`
	Format      string  `json:"format"`
}

type probeOutput struct {
	Streams []struct {
		CodecType     string `json:"codec_type"`
		SampleRate    string `json:"sample_rate"`
		Channels      int    `json:"channels"`
		BitsPerSample int    `json:"bits_per_sample"`
		CodecName     string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// Probe runs ffprobe on path. It works for any container ffmpeg can read,
// which is what the raw corpora ship (flac, mp3, ogg, wav).
func Probe(ctx context.Context, path string) (*Metadata, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbe(out, fi.Size())
}

func parseProbe(out []byte, size int64) (*Metadata, error) {
	var probe probeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, err
	}

	m := &Metadata{FileSize: size, Format: probe.Format.FormatName}
	if probe.Format.Duration != "" {
		m.DurationSec, _ = strconv.ParseFloat(probe.Format.Duration, 64)
	}

	for _, s := range probe.Streams {
		if s.CodecType != "" && s.CodecType != "audio" {
			continue
		}
		m.SampleRate, _ = strconv.Atoi(s.SampleRate)
		m.Channels = s.Channels
		m.BitDepth = s.BitsPerSample
		m.Codec = s.CodecName
		return m, nil
	}
	return nil, fmt.Errorf("no audio stream")
}
