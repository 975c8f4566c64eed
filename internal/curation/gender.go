package curation

import (
	"fmt"
	"sort"
	"strings"

	"audio-curator/internal/manifest"
)

// NormalizeGender maps free-form gender labels onto m, f or o.
func NormalizeGender(g string) string {
	g = strings.ToLower(strings.TrimSpace(g))
	switch {
	case g == "":
		return "o"
	case g[0] == 'm':
		return "m"
	case g[0] == 'f' || g[0] == 'w':
		return "f"
	}
	return "o"
}

// Genders returns the per-speaker gender table carried by the list, with
// speakerPrefix added to each speaker id so it matches utt2spk values.
// Rows without a speaker or gender are skipped.
func (l *List) Genders(speakerPrefix string) (*manifest.Table, error) {
	if !l.Has(ColSpeaker) || !l.Has(ColGender) {
		return manifest.NewTable(manifest.Spk2Gender), nil
	}
	seen := make(map[string]string)
	for _, r := range l.Records {
		if r.Speaker == "" || r.Gender == "" {
			continue
		}
		spk := speakerPrefix + r.Speaker
		g := NormalizeGender(r.Gender)
		if prev, ok := seen[spk]; ok && prev != g {
			return nil, &ConflictError{Conflicts: []Conflict{{Speaker: spk, Derived: prev, Trusted: g}}}
		}
		seen[spk] = g
	}
	spks := make([]string, 0, len(seen))
	for s := range seen {
		spks = append(spks, s)
	}
	sort.Strings(spks)
	t := manifest.NewTable(manifest.Spk2Gender)
	for _, s := range spks {
		t.Append(manifest.Row{Key: s, Value: seen[s]})
	}
	return t, nil
}

// Conflict is one speaker whose derived and trusted gender disagree.
type Conflict struct {
	Speaker string
	Derived string
	Trusted string
}

type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	spks := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		spks[i] = fmt.Sprintf("%s(%s!=%s)", c.Speaker, c.Derived, c.Trusted)
	}
	return fmt.Sprintf("gender conflict for %d speakers: %s", len(e.Conflicts), manifest.FirstN(spks, 5))
}

// ReconcileGenders merges derived and trusted spk2gender tables. Trusted
// values fill gaps and win; disagreements are returned, and are an error
// when strict is set. The result is sorted by speaker.
func ReconcileGenders(derived, trusted *manifest.Table, strict bool) (*manifest.Table, []Conflict, error) {
	merged := make(map[string]string)
	if derived != nil {
		for _, r := range derived.Rows() {
			merged[r.Key] = NormalizeGender(r.Value)
		}
	}
	var conflicts []Conflict
	if trusted != nil {
		for _, r := range trusted.Rows() {
			tv := NormalizeGender(r.Value)
			if dv, ok := merged[r.Key]; ok && dv != tv {
				conflicts = append(conflicts, Conflict{Speaker: r.Key, Derived: dv, Trusted: tv})
			}
			merged[r.Key] = tv
		}
	}
	spks := make([]string, 0, len(merged))
	for s := range merged {
		spks = append(spks, s)
	}
	sort.Strings(spks)
	out := manifest.NewTable(manifest.Spk2Gender)
	for _, s := range spks {
		out.Append(manifest.Row{Key: s, Value: merged[s]})
	}
	if strict && len(conflicts) > 0 {
		return nil, conflicts, &ConflictError{Conflicts: conflicts}
	}
	return out, conflicts, nil
}
