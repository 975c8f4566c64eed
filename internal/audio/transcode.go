package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Transcoder decodes src and writes dst as 16-bit PCM WAV at rate.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string, rate int) error
}

// FFmpeg transcodes with the ffmpeg binary.
type FFmpeg struct {
	Bin string
}

func (f FFmpeg) Transcode(ctx context.Context, src, dst string, rate int) error {
	bin := f.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	return run(ctx, bin,
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vn",
		"-ar", strconv.Itoa(rate),
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst)
}

// Sox transcodes with sox using its very-high-quality rate effect.
type Sox struct {
	Bin string
}

func (s Sox) Transcode(ctx context.Context, src, dst string, rate int) error {
	bin := s.Bin
	if bin == "" {
		bin = "sox"
	}
	return run(ctx, bin,
		"-V1", src,
		"-b", "16", "-e", "signed-integer", "-t", "wav", dst,
		"rate", "-v", strconv.Itoa(rate))
}

// Native handles WAV input that is already at the target rate without an
// external process. Anything else goes to Fallback.
type Native struct {
	Fallback Transcoder
}

func (n Native) Transcode(ctx context.Context, src, dst string, rate int) error {
	if strings.EqualFold(filepath.Ext(src), ".wav") {
		if h, err := ReadWAVHeader(src); err == nil && h.SampleRate == rate {
			return reencodeWAV(src, dst, rate)
		}
	}
	if n.Fallback == nil {
		return fmt.Errorf("%s: needs resampling and no external backend is set", src)
	}
	return n.Fallback.Transcode(ctx, src, dst, rate)
}

// NewTranscoder returns the backend for a RESAMPLE_BACKEND value.
func NewTranscoder(backend string) (Transcoder, error) {
	switch strings.ToLower(backend) {
	case "", "ffmpeg":
		return FFmpeg{}, nil
	case "sox":
		return Sox{}, nil
	case "native":
		return Native{Fallback: FFmpeg{}}, nil
	}
	return nil, fmt.Errorf("unknown resample backend %q", backend)
}

// TranscodeFile writes dst through a ".part" sibling and renames it into
// place only after the output has the expected header, so a dst that exists
// is always complete.
func TranscodeFile(ctx context.Context, t Transcoder, src, dst string, rate int) (*Header, error) {
	part := dst + ".part"
	if err := t.Transcode(ctx, src, part, rate); err != nil {
		os.Remove(part)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}
	h, err := CheckWAV(part, rate)
	if err != nil {
		os.Remove(part)
		return nil, err
	}
	if err := os.Rename(part, dst); err != nil {
		os.Remove(part)
		return nil, err
	}
	return h, nil
}

func run(ctx context.Context, bin string, args ...string) error {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 300 {
			msg = msg[:300]
		}
		if msg != "" {
			return fmt.Errorf("%s: %w: %s", filepath.Base(bin), err, msg)
		}
		return fmt.Errorf("%s: %w", filepath.Base(bin), err)
	}
	return nil
}
