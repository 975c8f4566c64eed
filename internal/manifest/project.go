package manifest

import (
	"sort"
	"strconv"
	"strings"
)

// Column derives one table value from an entry. ok=false skips the row.
type Column func(Entry) (value string, ok bool)

func SampleRateColumn(e Entry) (string, bool) {
	if e.SampleRate <= 0 {
		return "", false
	}
	return strconv.Itoa(e.SampleRate), true
}

// CategoryColumn renders "<channels>ch_<rate>Hz"; mono is assumed when the
// channel count is unknown.
func CategoryColumn(e Entry) (string, bool) {
	if e.SampleRate <= 0 {
		return "", false
	}
	return Category(e.Channels, e.SampleRate), true
}

func Category(channels, sampleRate int) string {
	if channels <= 0 {
		channels = 1
	}
	return strconv.Itoa(channels) + "ch_" + strconv.Itoa(sampleRate) + "Hz"
}

// ConstColumn emits the same value for every entry.
func ConstColumn(v string) Column {
	return func(Entry) (string, bool) { return v, true }
}

// Project builds a table named name from m through col.
func Project(m *Manifest, name string, col Column) *Table {
	t := NewTable(name)
	for _, e := range m.entries {
		if v, ok := col(e); ok {
			t.Append(Row{Key: e.ID, Value: v})
		}
	}
	return t
}

// Invert turns utt2spk into spk2utt. Speakers are sorted, utterances keep
// the order in which they appear in utt2spk.
func Invert(utt2spk *Table) *Table {
	byspk := make(map[string][]string)
	for _, r := range utt2spk.rows {
		byspk[r.Value] = append(byspk[r.Value], r.Key)
	}
	spks := make([]string, 0, len(byspk))
	for s := range byspk {
		spks = append(spks, s)
	}
	sort.Strings(spks)
	out := NewTable(Spk2Utt)
	for _, s := range spks {
		out.Append(Row{Key: s, Value: strings.Join(byspk[s], " ")})
	}
	return out
}
