package merge

import (
	"sort"

	"audio-curator/internal/manifest"
)

// NormalizeManifest sorts entries by id (stable) and drops exact duplicate
// rows. The same id with different content is a ConflictError.
func NormalizeManifest(m *manifest.Manifest) (*manifest.Manifest, error) {
	entries := m.Entries()
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	out := manifest.New()
	for i, e := range entries {
		if i > 0 && entries[i-1].ID == e.ID {
			prev := entries[i-1]
			if prev != e {
				return nil, &ConflictError{Table: manifest.WavScp, Key: e.ID, A: prev.Line(), B: e.Line()}
			}
			continue
		}
		out.Append(e)
	}
	return out, nil
}

// NormalizeTable applies the same sort and dedup to an aligned table.
func NormalizeTable(t *manifest.Table) (*manifest.Table, error) {
	rows := t.Rows()
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Key < rows[j].Key })

	out := manifest.NewTable(t.Name)
	for i, r := range rows {
		if i > 0 && rows[i-1].Key == r.Key {
			if rows[i-1].Value != r.Value {
				return nil, &ConflictError{Table: t.Name, Key: r.Key, A: rows[i-1].Value, B: r.Value}
			}
			continue
		}
		out.Append(r)
	}
	return out, nil
}

// Normalize canonicalizes a data dir: the manifest and every table get the
// same key ordering, then key subsets are validated.
func Normalize(d *manifest.Dir) (*manifest.Dir, error) {
	m, err := NormalizeManifest(d.Manifest)
	if err != nil {
		return nil, err
	}
	out := manifest.NewDir(m)
	for _, name := range d.Names() {
		t, err := NormalizeTable(d.Table(name))
		if err != nil {
			return nil, err
		}
		out.Put(t)
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}
