package audio

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV is returned for files without a readable RIFF/WAVE header.
var ErrNotWAV = errors.New("not a valid wav file")

// Header is the format block of a WAV file.
type Header struct {
	SampleRate int
	Channels   int
	BitDepth   int
	Duration   time.Duration
}

// ReadWAVHeader reads the format chunk of a WAV file without decoding the
// samples.
func ReadWAVHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	h := &Header{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if frame := h.Channels * h.BitDepth / 8; frame > 0 && h.SampleRate > 0 {
		frames := d.PCMLen() / int64(frame)
		h.Duration = time.Duration(frames) * time.Second / time.Duration(h.SampleRate)
	}
	return h, nil
}

// CheckWAV verifies path is a non-empty WAV at the given sample rate.
func CheckWAV(path string, rate int) (*Header, error) {
	h, err := ReadWAVHeader(path)
	if err != nil {
		return nil, err
	}
	if h.SampleRate != rate {
		return h, fmt.Errorf("%s: sample rate %d, want %d", path, h.SampleRate, rate)
	}
	if h.Duration <= 0 {
		return h, fmt.Errorf("%s: empty audio", path)
	}
	return h, nil
}

// WriteWAV writes 16-bit PCM samples (interleaved when channels > 1).
func WriteWAV(path string, rate, channels int, samples []int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: rate, NumChannels: channels},
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		f.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// reencodeWAV decodes src fully and writes it back as 16-bit PCM. src must
// already be at rate.
func reencodeWAV(src, dst string, rate int) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	d := wav.NewDecoder(in)
	if !d.IsValidFile() {
		return fmt.Errorf("%s: %w", src, ErrNotWAV)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return fmt.Errorf("decode %s: %w", src, err)
	}
	if buf.Format.SampleRate != rate {
		return fmt.Errorf("%s: sample rate %d, want %d", src, buf.Format.SampleRate, rate)
	}

	data := buf.Data
	if d.BitDepth == 8 {
		data = make([]int, len(buf.Data))
		for i, s := range buf.Data {
			data[i] = (s - 128) << 8
		}
	} else if shift := int(d.BitDepth) - 16; shift > 0 {
		data = make([]int, len(buf.Data))
		for i, s := range buf.Data {
			data[i] = s >> shift
		}
	} else if shift < 0 {
		data = make([]int, len(buf.Data))
		for i, s := range buf.Data {
			data[i] = s << -shift
		}
	}
	return WriteWAV(dst, rate, buf.Format.NumChannels, data)
}
