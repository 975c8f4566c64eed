package curation

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-curator/internal/manifest"
)

func listOf(t *testing.T, csv string) *List {
	t.Helper()
	l, err := ReadCSV(strings.NewReader(csv), "list.csv")
	require.NoError(t, err)
	return l
}

func TestFilter_IncludeByUID(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "u1", Path: "/p/path1.wav"},
		manifest.Entry{ID: "u2", Path: "/p/path2.wav"},
	)
	out, err := Filter(m, listOf(t, "uid,score\nu1,4.1\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []manifest.Entry{{ID: "u1", Path: "/p/path1.wav"}}, out.Entries())
}

func TestFilter_ByFilenameWhenNoUID(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "a", Path: "/x/a.wav"},
		manifest.Entry{ID: "b", Path: "/x/b.wav"},
		manifest.Entry{ID: "c", Path: "/y/c.wav"},
	)
	out, err := Filter(m, listOf(t, "filename\nc.wav\na.wav\n"), Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, out.IDs())
}

func TestFilter_Exclude(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "motus_1", Path: "/r/1.wav"},
		manifest.Entry{ID: "motus_2", Path: "/r/2.wav"},
	)
	out, err := Filter(m, listOf(t, "uid\nmotus_2\n"), Options{Exclude: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"motus_1"}, out.IDs())
}

func TestFilter_StripPrefixCanonicalizesBothSides(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "fsd50k_100", Path: "/f/100.wav"},
		manifest.Entry{ID: "fsd50k_200", Path: "/f/200.wav"},
	)
	out, err := Filter(m, listOf(t, "uid\n200\n"), Options{Key: StripPrefix("fsd50k_", ByID)})
	require.NoError(t, err)
	assert.Equal(t, []string{"fsd50k_200"}, out.IDs())
}

func TestFilter_SpeakerFilenamePairs(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "S1_a", Path: "/g/S1/a.flac"},
		manifest.Entry{ID: "S2_a", Path: "/g/S2/a.flac"},
	)
	u2s := manifest.NewTable(manifest.Utt2Spk,
		manifest.Row{Key: "S1_a", Value: "globe_S1"},
		manifest.Row{Key: "S2_a", Value: "globe_S2"},
	)
	l := listOf(t, "filename,speaker_id,gender\na.flac,S2,female\n")
	out, err := Filter(m, l, Options{Column: SpeakerFilenameKey, Key: SpeakerFilename(u2s, "globe_")})
	require.NoError(t, err)
	assert.Equal(t, []string{"S2_a"}, out.IDs())
}

func TestFilter_ZeroSurvivorsIsMismatch(t *testing.T) {
	m := manifest.New(manifest.Entry{ID: "u1", Path: "/a.wav"})
	_, err := Filter(m, listOf(t, "uid\nsomething_else\n"), Options{})

	var merr *MismatchError
	require.ErrorAs(t, err, &merr)
	assert.True(t, errors.Is(err, ErrCurationMismatch))
	assert.Equal(t, 1, merr.Input)
}

func TestFilter_EmptyInputIsNotMismatch(t *testing.T) {
	out, err := Filter(manifest.New(), listOf(t, "uid\nu1\n"), Options{})
	require.NoError(t, err)
	assert.Zero(t, out.Len())
}

func TestFilter_ResultIsSubsetOfBothSides(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "a", Path: "1"},
		manifest.Entry{ID: "b", Path: "2"},
		manifest.Entry{ID: "c", Path: "3"},
	)
	l := listOf(t, "uid\nb\nc\nz\n")
	out, err := Filter(m, l, Options{})
	require.NoError(t, err)

	keys, err := l.Keys(ColUID)
	require.NoError(t, err)
	for _, id := range out.IDs() {
		assert.True(t, m.Has(id))
		assert.Contains(t, keys, id)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), "empty.csv")
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("score,dnsmos\n1,2\n"), "nocols.csv")
	assert.Error(t, err)

	l := listOf(t, "gender\nm\n")
	_, err = Filter(manifest.New(manifest.Entry{ID: "a", Path: "b"}), l, Options{})
	assert.Error(t, err)
}

func TestLoad_PicksReaderByExtension(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "keep.csv")
	txtPath := filepath.Join(dir, "val.lst")
	require.NoError(t, os.WriteFile(csvPath, []byte("\ufeffUID\nx\n"), 0o644))
	require.NoError(t, os.WriteFile(txtPath, []byte("x x.wav\n\ny\n"), 0o644))

	l, err := Load(csvPath)
	require.NoError(t, err)
	assert.True(t, l.Has(ColUID))
	assert.Equal(t, 1, l.Len())

	l, err = Load(txtPath)
	require.NoError(t, err)
	assert.Equal(t, []Record{{UID: "x"}, {UID: "y"}}, l.Records)
}

func TestNormalizeGender(t *testing.T) {
	assert.Equal(t, "m", NormalizeGender("Male"))
	assert.Equal(t, "f", NormalizeGender("female"))
	assert.Equal(t, "f", NormalizeGender("F"))
	assert.Equal(t, "o", NormalizeGender(""))
	assert.Equal(t, "o", NormalizeGender("other"))
}

func TestGenders_FromList(t *testing.T) {
	l := listOf(t, "filename,speaker_id,gender\na.flac,S1,male\nb.flac,S1,male\nc.flac,S2,female\n")
	g, err := l.Genders("globe_")
	require.NoError(t, err)
	assert.Equal(t, []manifest.Row{{Key: "globe_S1", Value: "m"}, {Key: "globe_S2", Value: "f"}}, g.Rows())
}

func TestGenders_InconsistentList(t *testing.T) {
	l := listOf(t, "filename,speaker_id,gender\na.flac,S1,male\nb.flac,S1,female\n")
	_, err := l.Genders("")
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
}

// Derived and trusted gender must agree for every speaker both know.
func TestReconcileGenders_TrustedAndDerivedAgree(t *testing.T) {
	l := listOf(t, "filename,speaker_id,gender\na.flac,S1,male\nc.flac,S2,female\n")
	trusted, err := l.Genders("globe_")
	require.NoError(t, err)
	derived := manifest.NewTable(manifest.Spk2Gender,
		manifest.Row{Key: "globe_S1", Value: "m"},
		manifest.Row{Key: "globe_S3", Value: "o"},
	)

	merged, conflicts, err := ReconcileGenders(derived, trusted, true)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	for _, r := range trusted.Rows() {
		v, ok := merged.Lookup(r.Key)
		require.True(t, ok)
		assert.Equal(t, r.Value, v, "speaker %s", r.Key)
	}
	assert.Equal(t, 3, merged.Len())
}

func TestReconcileGenders_Disagreement(t *testing.T) {
	derived := manifest.NewTable(manifest.Spk2Gender, manifest.Row{Key: "s1", Value: "f"})
	trusted := manifest.NewTable(manifest.Spk2Gender, manifest.Row{Key: "s1", Value: "m"})

	merged, conflicts, err := ReconcileGenders(derived, trusted, false)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	v, _ := merged.Lookup("s1")
	assert.Equal(t, "m", v)

	_, _, err = ReconcileGenders(derived, trusted, true)
	var cerr *ConflictError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "s1", cerr.Conflicts[0].Speaker)
}
