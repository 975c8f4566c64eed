package scanner

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Strategy derives the utterance id and speaker id of one audio file.
// An empty speaker means the corpus has no speaker notion (noise, RIRs).
type Strategy interface {
	Derive(path string) (utt, spk string, err error)
}

// Transcriber is implemented by strategies that can read transcripts that
// ship with the corpus.
type Transcriber interface {
	Transcripts(root string) (map[string]string, error)
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Stem uses the file name without extension, optionally prefixed
// (e.g. "motus_", "fsd50k_", "fma_").
type Stem struct {
	Prefix string
}

func (s Stem) Derive(path string) (string, string, error) {
	st := stem(path)
	if st == "" {
		return "", "", fmt.Errorf("empty file name: %s", path)
	}
	return s.Prefix + st, "", nil
}

// SpeakerDir takes the speaker from the parent directory: id "<spk>_<stem>",
// speaker "<SpeakerPrefix><spk>". This is the GLOBE layout flac/<spk>/<utt>.flac.
type SpeakerDir struct {
	SpeakerPrefix string
}

func (s SpeakerDir) Derive(path string) (string, string, error) {
	spk := filepath.Base(filepath.Dir(path))
	st := stem(path)
	if spk == "" || spk == "." || spk == string(filepath.Separator) || st == "" {
		return "", "", fmt.Errorf("cannot derive speaker from %s", path)
	}
	return spk + "_" + st, s.SpeakerPrefix + spk, nil
}

// ByName resolves a strategy from the corpus registry.
func ByName(name, prefix string) (Strategy, error) {
	switch name {
	case "", "stem":
		return Stem{Prefix: prefix}, nil
	case "speaker_dir":
		return SpeakerDir{SpeakerPrefix: prefix}, nil
	case "librispeech":
		return LibriSpeech{SpeakerPrefix: prefix}, nil
	}
	return nil, fmt.Errorf("unknown id strategy %q", name)
}
