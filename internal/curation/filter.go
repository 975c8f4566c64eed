package curation

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"audio-curator/internal/manifest"
)

// ErrCurationMismatch marks a filter run where nothing survived.
var ErrCurationMismatch = errors.New("curation list matched no entries")

// MismatchError is returned when a non-empty manifest filters down to
// nothing, which almost always means the two sides use different key formats.
type MismatchError struct {
	List   string
	Column string
	Input  int
	Keys   int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: 0 of %d entries matched %d %q keys (key format mismatch?)",
		e.List, e.Input, e.Keys, e.Column)
}

func (e *MismatchError) Unwrap() error { return ErrCurationMismatch }

// KeyFunc canonicalizes a manifest entry into the key space of a list column.
type KeyFunc func(manifest.Entry) string

func ByID(e manifest.Entry) string { return e.ID }

func ByFilename(e manifest.Entry) string { return filepath.Base(e.Path) }

func ByStem(e manifest.Entry) string {
	base := filepath.Base(e.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// StripPrefix removes a corpus prefix from the key produced by inner.
func StripPrefix(prefix string, inner KeyFunc) KeyFunc {
	return func(e manifest.Entry) string {
		return strings.TrimPrefix(inner(e), prefix)
	}
}

// SpeakerFilename keys entries as "<speaker>/<filename>" using utt2spk, with
// speakerPrefix removed from the speaker id first.
func SpeakerFilename(utt2spk *manifest.Table, speakerPrefix string) KeyFunc {
	return func(e manifest.Entry) string {
		spk, ok := utt2spk.Lookup(e.ID)
		if !ok {
			return ""
		}
		return strings.TrimPrefix(spk, speakerPrefix) + "/" + filepath.Base(e.Path)
	}
}

type Options struct {
	// Column of the list to match against; empty picks uid, then filename.
	Column string
	// Key maps entries into Column's key space; nil picks ByID for uid and
	// ByFilename for filename.
	Key     KeyFunc
	Exclude bool
	Logger  logrus.FieldLogger
}

// Filter keeps (or with Exclude drops) the entries whose key is in the list.
// The result keeps the input order and never aliases m.
func Filter(m *manifest.Manifest, list *List, opts Options) (*manifest.Manifest, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	col := opts.Column
	if col == "" {
		var err error
		if col, err = list.DefaultKeyColumn(); err != nil {
			return nil, err
		}
	}
	key := opts.Key
	if key == nil {
		switch col {
		case ColUID:
			key = ByID
		case ColFilename:
			key = ByFilename
		default:
			return nil, fmt.Errorf("%s: no default key function for column %q", list.Name, col)
		}
	}
	keys, err := list.Keys(col)
	if err != nil {
		return nil, err
	}

	matched := 0
	out := m.Filter(func(e manifest.Entry) bool {
		_, in := keys[key(e)]
		if in {
			matched++
		}
		return in != opts.Exclude
	})

	mode := "include"
	if opts.Exclude {
		mode = "exclude"
	}
	log.WithFields(logrus.Fields{
		"list":    list.Name,
		"mode":    mode,
		"column":  col,
		"entries": list.Len(),
		"input":   m.Len(),
		"output":  out.Len(),
	}).Info("Filtered via curation list")

	if m.Len() > 0 && out.Len() == 0 {
		return nil, &MismatchError{List: list.Name, Column: col, Input: m.Len(), Keys: len(keys)}
	}
	if opts.Exclude && matched == 0 && len(keys) > 0 && m.Len() > 0 {
		log.WithFields(logrus.Fields{"list": list.Name, "column": col}).
			Warn("Exclusion list matched nothing; check the key format")
	}
	return out, nil
}
