package scanner

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// LibriSpeech ids look like "<speaker>-<chapter>-<utt>"; transcripts live in
// one "<speaker>-<chapter>.trans.txt" per chapter directory.
type LibriSpeech struct {
	SpeakerPrefix string
}

func (l LibriSpeech) Derive(path string) (string, string, error) {
	id := stem(path)
	spk, _, ok := strings.Cut(id, "-")
	if !ok || spk == "" {
		return "", "", fmt.Errorf("not a librispeech id: %s", id)
	}
	return id, l.SpeakerPrefix + spk, nil
}

// Transcripts collects every *.trans.txt below root.
func (l LibriSpeech) Transcripts(root string) (map[string]string, error) {
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".trans.txt") {
			return parseTransFile(path, out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func parseTransFile(transPath string, out map[string]string) error {
	f, err := os.Open(transPath)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		// "ID transcript text"
		id, text, ok := strings.Cut(line, " ")
		if !ok {
			continue
		}
		out[id] = strings.TrimSpace(text)
	}

	return scanner.Err()
}
