package merge

import (
	"fmt"

	"audio-curator/internal/manifest"
)

// DuplicateIDError means two corpora produced the same utterance id.
type DuplicateIDError struct {
	ID     string
	First  string
	Second string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("duplicate id %q in %s and %s", e.ID, e.First, e.Second)
}

// AlignmentError means an aligned table does not have one row per entry.
// When the counts agree, Key names an id whose rows are off and Want/Got
// are that id's occurrences in the manifest and the table.
type AlignmentError struct {
	Field  string
	Source string
	Key    string
	Want   int
	Got    int
}

func (e *AlignmentError) Error() string {
	switch {
	case e.Got < 0:
		return fmt.Sprintf("%s: missing aligned table %s", e.Source, e.Field)
	case e.Key != "":
		return fmt.Sprintf("%s: %s has %d rows for %q, manifest has %d", e.Source, e.Field, e.Got, e.Key, e.Want)
	}
	return fmt.Sprintf("%s: %s has %d rows, manifest has %d", e.Source, e.Field, e.Got, e.Want)
}

// ConflictError means one key carries two different values.
type ConflictError struct {
	Table string
	Key   string
	A, B  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: key %q has conflicting rows %q and %q", e.Table, e.Key, e.A, e.B)
}

// Source is one prepared corpus.
type Source struct {
	Name string
	Dir  *manifest.Dir
}

// Combine concatenates sources in order. Every table named in fields is
// concatenated in lockstep; utterance keyed tables must have exactly one row
// per manifest entry, speaker keyed tables are merged by key.
func Combine(sources []Source, fields []string) (*manifest.Dir, error) {
	out := manifest.NewDir(manifest.New())
	for _, f := range fields {
		out.Put(manifest.NewTable(f))
	}
	owner := make(map[string]string)

	for _, src := range sources {
		m := src.Dir.Manifest
		for _, e := range m.Entries() {
			if prev, ok := owner[e.ID]; ok && prev != src.Name {
				return nil, &DuplicateIDError{ID: e.ID, First: prev, Second: src.Name}
			}
			owner[e.ID] = src.Name
			out.Manifest.Append(e)
		}

		ids := m.IDSet()
		for _, f := range fields {
			t := src.Dir.Table(f)
			if t == nil {
				return nil, &AlignmentError{Field: f, Source: src.Name, Want: m.Len(), Got: -1}
			}
			dst := out.Table(f)
			if manifest.KindOf(f) == manifest.KeySpeaker {
				if err := mergeByKey(dst, t); err != nil {
					return nil, err
				}
				continue
			}
			if t.Len() != m.Len() {
				return nil, &AlignmentError{Field: f, Source: src.Name, Want: m.Len(), Got: t.Len()}
			}
			if err := t.CheckSubset(ids); err != nil {
				return nil, fmt.Errorf("%s: %w", src.Name, err)
			}
			if err := checkRowsPerID(m, t, src.Name); err != nil {
				return nil, err
			}
			for _, r := range t.Rows() {
				dst.Append(r)
			}
		}
	}
	return out, nil
}

// checkRowsPerID requires every id to have as many rows in t as entries in m.
func checkRowsPerID(m *manifest.Manifest, t *manifest.Table, source string) error {
	want := make(map[string]int, m.Len())
	for _, id := range m.IDs() {
		want[id]++
	}
	got := make(map[string]int, t.Len())
	for _, k := range t.Keys() {
		got[k]++
	}
	for _, id := range m.IDs() {
		if got[id] != want[id] {
			return &AlignmentError{Field: t.Name, Source: source, Key: id, Want: want[id], Got: got[id]}
		}
	}
	return nil
}

func mergeByKey(dst, src *manifest.Table) error {
	for _, r := range src.Rows() {
		if v, ok := dst.Lookup(r.Key); ok {
			if v != r.Value {
				return &ConflictError{Table: dst.Name, Key: r.Key, A: v, B: r.Value}
			}
			continue
		}
		dst.Append(r)
	}
	return nil
}
