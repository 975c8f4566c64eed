package manifest

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_TwoAndThreeFieldRows(t *testing.T) {
	in := "u1 /data/a.wav\n\nu2 16000 /data/b.flac\n"
	m, err := Read(strings.NewReader(in), "wav.scp", LoadOptions{})
	require.NoError(t, err)

	require.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"u1", "u2"}, m.IDs())

	e, ok := m.Get("u2")
	require.True(t, ok)
	assert.Equal(t, 16000, e.SampleRate)
	assert.Equal(t, "/data/b.flac", e.Path)

	e, _ = m.Get("u1")
	assert.Zero(t, e.SampleRate)
}

func TestRead_Malformed(t *testing.T) {
	cases := map[string]string{
		"one field":    "u1\n",
		"four fields":  "u1 a b c\n",
		"bad rate":     "u1 fast /a.wav\n",
		"zero rate":    "u1 0 /a.wav\n",
		"duplicate id": "u1 /a.wav\nu1 /b.wav\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(in), "wav.scp", LoadOptions{})
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, "wav.scp", perr.File)
		})
	}
}

func TestRead_DuplicateLineNumber(t *testing.T) {
	_, err := Read(strings.NewReader("u1 /a.wav\nu2 /b.wav\nu1 /c.wav\n"), "x.scp", LoadOptions{})
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 3, perr.Line)
}

func TestRead_AllowDuplicates(t *testing.T) {
	m, err := Read(strings.NewReader("u1 /a.wav\nu1 /a.wav\n"), "x", LoadOptions{AllowDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.Equal(t, []string{"u1"}, m.Duplicates())
}

func TestWrite_KeepsInsertionOrder(t *testing.T) {
	m := New(
		Entry{ID: "b", Path: "/b.wav", SampleRate: 24000},
		Entry{ID: "a", Path: "/a.wav"},
	)
	var buf bytes.Buffer
	require.NoError(t, m.Write(&buf))
	assert.Equal(t, "b 24000 /b.wav\na /a.wav\n", buf.String())
}

func TestSaveLoad_RoundTripThroughDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", WavScp)
	m := New(Entry{ID: "u1", Path: "/x/u1.wav", SampleRate: 24000})
	require.NoError(t, m.Save(path))

	got, err := Load(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, m.Entries(), got.Entries())

	// no temp files left behind
	files, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSave_RejectsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), WavScp)
	m := New(
		Entry{ID: "fma_000122", Path: "/corpora/fma/track02.mp3"},
		Entry{ID: "fma_000123", Path: "/corpora/fma/Track 01.mp3"},
	)
	err := m.Save(path)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, path, perr.File)
	assert.Equal(t, 2, perr.Line)
	_, statErr := os.Stat(path)
	assert.True(t, errors.Is(statErr, os.ErrNotExist))

	var buf bytes.Buffer
	require.ErrorAs(t, New(Entry{ID: "a b", Path: "/a.wav"}).Write(&buf), &perr)
	assert.Empty(t, buf.String())
	require.ErrorAs(t, New(Entry{ID: "a"}).Write(&buf), &perr)
}

func TestTableSave_RejectsUnreadableRows(t *testing.T) {
	dir := t.TempDir()
	var perr *ParseError
	require.ErrorAs(t, NewTable(Utt2Spk, Row{"u1", "s1"}, Row{"u 2", "s1"}).Save(filepath.Join(dir, Utt2Spk)), &perr)
	assert.Equal(t, 2, perr.Line)
	require.ErrorAs(t, NewTable(Text, Row{"u1", "  "}).Save(filepath.Join(dir, Text)), &perr)
	require.ErrorAs(t, NewTable(Text, Row{"u1", "two\nlines"}).Save(filepath.Join(dir, Text)), &perr)

	// inner whitespace in a value survives the round trip
	path := filepath.Join(dir, "text.ok")
	require.NoError(t, NewTable(Text, Row{"u1", "hello  big world"}).Save(path))
	tab, err := LoadTable(path)
	require.NoError(t, err)
	v, _ := tab.Lookup("u1")
	assert.Equal(t, "hello  big world", v)
}

func TestHeadAndRestrict(t *testing.T) {
	m := New(Entry{ID: "a", Path: "1"}, Entry{ID: "b", Path: "2"}, Entry{ID: "c", Path: "3"})

	assert.Equal(t, []string{"a", "b"}, m.Head(2).IDs())
	assert.Equal(t, 3, m.Head(0).Len())
	assert.Equal(t, 3, m.Head(10).Len())

	r := m.Restrict(map[string]struct{}{"c": {}, "a": {}, "zz": {}})
	assert.Equal(t, []string{"a", "c"}, r.IDs())
}

func TestReadTable_KeepsSpacesInValue(t *testing.T) {
	tab, err := ReadTable(strings.NewReader("u1 hello  big world\nu2\t<not-available>\n"), "/tmp/text")
	require.NoError(t, err)
	assert.Equal(t, "text", tab.Name)

	v, ok := tab.Lookup("u1")
	require.True(t, ok)
	assert.Equal(t, "hello  big world", v)

	v, _ = tab.Lookup("u2")
	assert.Equal(t, NotAvailable, v)
}

func TestReadTable_TabSeparatedKey(t *testing.T) {
	tab, err := ReadTable(strings.NewReader("u1\thello world\nu2 \t fine\n"), "text")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, tab.Keys())
	v, _ := tab.Lookup("u1")
	assert.Equal(t, "hello world", v)
	v, _ = tab.Lookup("u2")
	assert.Equal(t, "fine", v)
}

func TestReadTable_MissingValue(t *testing.T) {
	_, err := ReadTable(strings.NewReader("u1\n"), "utt2spk")
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 1, perr.Line)
}

func TestTable_CheckSubset(t *testing.T) {
	tab := NewTable(Utt2Spk, Row{"u1", "s1"}, Row{"u9", "s1"})
	err := tab.CheckSubset(map[string]struct{}{"u1": {}})

	var oerr *OrphanError
	require.ErrorAs(t, err, &oerr)
	assert.Equal(t, []string{"u9"}, oerr.Keys)
	assert.Contains(t, oerr.Error(), "utt2spk")
}

func TestProject(t *testing.T) {
	m := New(
		Entry{ID: "u1", Path: "/a.wav", SampleRate: 24000, Channels: 1},
		Entry{ID: "u2", Path: "/b.wav", SampleRate: 48000, Channels: 2},
		Entry{ID: "u3", Path: "/c.wav"},
	)

	fs := Project(m, Utt2Fs, SampleRateColumn)
	assert.Equal(t, []Row{{"u1", "24000"}, {"u2", "48000"}}, fs.Rows())

	cat := Project(m, Utt2Cat, CategoryColumn)
	assert.Equal(t, []Row{{"u1", "1ch_24000Hz"}, {"u2", "2ch_48000Hz"}}, cat.Rows())
}

func TestCategory_DefaultsToMono(t *testing.T) {
	assert.Equal(t, "1ch_16000Hz", Category(0, 16000))
}

func TestInvert(t *testing.T) {
	u2s := NewTable(Utt2Spk, Row{"u3", "s2"}, Row{"u1", "s1"}, Row{"u2", "s2"})
	s2u := Invert(u2s)
	assert.Equal(t, Spk2Utt, s2u.Name)
	assert.Equal(t, []Row{{"s1", "u1"}, {"s2", "u3 u2"}}, s2u.Rows())
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KeySpeaker, KindOf(Spk2Gender))
	assert.Equal(t, KeySpeaker, KindOf("/data/x/spk2utt"))
	assert.Equal(t, KeyUtterance, KindOf(Text))
	assert.Equal(t, KeyUtterance, KindOf("utt2whatever"))
}
