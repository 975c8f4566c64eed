package split

import (
	"fmt"
	"sort"

	"audio-curator/internal/curation"
	"audio-curator/internal/manifest"
)

// InsufficientDataError means every speaker was exhausted before MinTotal
// utterances could be carved. It is returned together with the partial split.
type InsufficientDataError struct {
	Want int
	Got  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("validation quota not reached: want %d utterances, got %d", e.Want, e.Got)
}

type Options struct {
	MinTotal      int
	MaxPerSpeaker int
	// Genders is an optional spk2gender table used by BalanceGender.
	Genders       *manifest.Table
	BalanceGender bool
}

type speaker struct {
	id   string
	utts []string
}

// ByQuota carves a validation set from m.
//
// Speakers are visited in ascending order of utterance count, ties broken by
// speaker id. Each visited speaker gives its first MaxPerSpeaker utterances in
// manifest order. The walk stops after the speaker whose slice brings the total
// to MinTotal. Utterances missing from utt2spk count as their own speaker.
func ByQuota(m *manifest.Manifest, utt2spk *manifest.Table, opts Options) (val, remaining *manifest.Manifest, err error) {
	if opts.MaxPerSpeaker <= 0 {
		return nil, nil, fmt.Errorf("max per speaker must be positive, got %d", opts.MaxPerSpeaker)
	}

	order := walkOrder(groupBySpeaker(m, utt2spk), opts)

	picked := make(map[string]struct{})
	for _, s := range order {
		if len(picked) >= opts.MinTotal {
			break
		}
		n := min(len(s.utts), opts.MaxPerSpeaker)
		for _, id := range s.utts[:n] {
			picked[id] = struct{}{}
		}
	}

	val = m.Restrict(picked)
	remaining = m.Filter(func(e manifest.Entry) bool {
		_, ok := picked[e.ID]
		return !ok
	})
	if len(picked) < opts.MinTotal {
		return val, remaining, &InsufficientDataError{Want: opts.MinTotal, Got: len(picked)}
	}
	return val, remaining, nil
}

func groupBySpeaker(m *manifest.Manifest, utt2spk *manifest.Table) []*speaker {
	var spkOf map[string]string
	if utt2spk != nil {
		spkOf = utt2spk.Map()
	}
	byID := make(map[string]*speaker)
	var out []*speaker
	for _, e := range m.Entries() {
		spk, ok := spkOf[e.ID]
		if !ok {
			spk = e.ID
		}
		s := byID[spk]
		if s == nil {
			s = &speaker{id: spk}
			byID[spk] = s
			out = append(out, s)
		}
		s.utts = append(s.utts, e.ID)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i].utts) != len(out[j].utts) {
			return len(out[i].utts) < len(out[j].utts)
		}
		return out[i].id < out[j].id
	})
	return out
}

// walkOrder interleaves male and female speakers when balancing is on.
// Speakers of other or unknown gender follow.
func walkOrder(spks []*speaker, opts Options) []*speaker {
	if !opts.BalanceGender || opts.Genders == nil {
		return spks
	}
	genders := opts.Genders.Map()
	var male, female, other []*speaker
	for _, s := range spks {
		switch curation.NormalizeGender(genders[s.id]) {
		case "m":
			male = append(male, s)
		case "f":
			female = append(female, s)
		default:
			other = append(other, s)
		}
	}
	out := make([]*speaker, 0, len(spks))
	for i := 0; i < len(male) || i < len(female); i++ {
		if i < len(male) {
			out = append(out, male[i])
		}
		if i < len(female) {
			out = append(out, female[i])
		}
	}
	return append(out, other...)
}
