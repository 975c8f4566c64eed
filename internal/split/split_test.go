package split

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-curator/internal/manifest"
)

// corpus builds a manifest with counts[i] utterances for speaker spk<i>.
func corpus(counts ...int) (*manifest.Manifest, *manifest.Table) {
	m := manifest.New()
	u2s := manifest.NewTable(manifest.Utt2Spk)
	for i, n := range counts {
		spk := fmt.Sprintf("spk%d", i)
		for j := 0; j < n; j++ {
			id := fmt.Sprintf("%s_%03d", spk, j)
			m.Append(manifest.Entry{ID: id, Path: "/d/" + id + ".wav"})
			u2s.Append(manifest.Row{Key: id, Value: spk})
		}
	}
	return m, u2s
}

func perSpeaker(m *manifest.Manifest, u2s *manifest.Table) map[string]int {
	spk := u2s.Map()
	out := map[string]int{}
	for _, id := range m.IDs() {
		out[spk[id]]++
	}
	return out
}

func assertPartition(t *testing.T, in, val, rest *manifest.Manifest) {
	t.Helper()
	for _, id := range val.IDs() {
		assert.False(t, rest.Has(id), "%s in both sides", id)
	}
	assert.Equal(t, in.Len(), val.Len()+rest.Len())
	for _, id := range in.IDs() {
		assert.True(t, val.Has(id) || rest.Has(id), "%s lost", id)
	}
}

func TestByQuota_FinishesCurrentSpeaker(t *testing.T) {
	m, u2s := corpus(40, 5, 2)

	val, rest, err := ByQuota(m, u2s, Options{MinTotal: 12, MaxPerSpeaker: 10})
	require.NoError(t, err)
	assert.Equal(t, 17, val.Len())
	assert.Equal(t, map[string]int{"spk0": 10, "spk1": 5, "spk2": 2}, perSpeaker(val, u2s))
	assertPartition(t, m, val, rest)
}

func TestByQuota_StopsOnceReached(t *testing.T) {
	m, u2s := corpus(3, 3, 3, 3)

	val, _, err := ByQuota(m, u2s, Options{MinTotal: 4, MaxPerSpeaker: 2})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"spk0": 2, "spk1": 2}, perSpeaker(val, u2s))
}

func TestByQuota_RespectsSpeakerCap(t *testing.T) {
	m, u2s := corpus(7, 1, 12, 4, 9)
	val, rest, err := ByQuota(m, u2s, Options{MinTotal: 100, MaxPerSpeaker: 3})

	var ierr *InsufficientDataError
	require.ErrorAs(t, err, &ierr)
	assert.Equal(t, 100, ierr.Want)
	assert.Equal(t, 13, ierr.Got)
	for spk, n := range perSpeaker(val, u2s) {
		assert.LessOrEqual(t, n, 3, spk)
	}
	assertPartition(t, m, val, rest)
}

func TestByQuota_Deterministic(t *testing.T) {
	m, u2s := corpus(6, 6, 2, 9)
	opts := Options{MinTotal: 5, MaxPerSpeaker: 4}

	a, _, err := ByQuota(m, u2s, opts)
	require.NoError(t, err)
	b, _, err := ByQuota(m, u2s, opts)
	require.NoError(t, err)
	assert.Equal(t, a.IDs(), b.IDs())
	// spk2 (2 utts) first, then spk0 before spk1 on the tie.
	assert.Equal(t, map[string]int{"spk2": 2, "spk0": 4}, perSpeaker(a, u2s))
}

func TestByQuota_KeepsManifestOrder(t *testing.T) {
	m, u2s := corpus(2, 1)
	val, _, err := ByQuota(m, u2s, Options{MinTotal: 3, MaxPerSpeaker: 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"spk0_000", "spk0_001", "spk1_000"}, val.IDs())
}

func TestByQuota_BalanceGender(t *testing.T) {
	m, u2s := corpus(2, 2, 2, 2)
	genders := manifest.NewTable(manifest.Spk2Gender,
		manifest.Row{Key: "spk0", Value: "m"},
		manifest.Row{Key: "spk1", Value: "m"},
		manifest.Row{Key: "spk2", Value: "f"},
		manifest.Row{Key: "spk3", Value: "female"},
	)

	val, _, err := ByQuota(m, u2s, Options{MinTotal: 4, MaxPerSpeaker: 2, Genders: genders, BalanceGender: true})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"spk0": 2, "spk2": 2}, perSpeaker(val, u2s))
}

func TestByQuota_UnknownSpeakerIsOwnGroup(t *testing.T) {
	m := manifest.New(
		manifest.Entry{ID: "n1", Path: "1"},
		manifest.Entry{ID: "n2", Path: "2"},
	)
	val, rest, err := ByQuota(m, nil, Options{MinTotal: 1, MaxPerSpeaker: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, val.IDs())
	assert.Equal(t, []string{"n2"}, rest.IDs())
}

func TestByQuota_RejectsZeroCap(t *testing.T) {
	m, u2s := corpus(1)
	_, _, err := ByQuota(m, u2s, Options{MinTotal: 1})
	assert.Error(t, err)
}

func TestByList_IgnoresMissing(t *testing.T) {
	m, _ := corpus(3)
	log, hook := test.NewNullLogger()

	val, missing := ByList(m, []string{"spk0_002", "gone", "spk0_000", "spk0_000"}, log)
	assert.Equal(t, []string{"spk0_000", "spk0_002"}, val.IDs())
	assert.Equal(t, []string{"gone"}, missing)
	require.Len(t, hook.Entries, 1)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
}

func TestByList_NoLogger(t *testing.T) {
	m, _ := corpus(1)
	val, missing := ByList(m, nil, nil)
	assert.Zero(t, val.Len())
	assert.Empty(t, missing)
}

func TestTables_RoutesByKey(t *testing.T) {
	m, u2s := corpus(2, 1)
	d := manifest.NewDir(m)
	d.Put(u2s)
	d.Put(manifest.NewTable(manifest.Spk2Gender,
		manifest.Row{Key: "spk0", Value: "m"},
		manifest.Row{Key: "spk1", Value: "f"}))
	d.Put(manifest.Project(m, manifest.Utt2Fs, manifest.ConstColumn("24000")))

	val, _, err := ByQuota(m, u2s, Options{MinTotal: 1, MaxPerSpeaker: 1})
	require.NoError(t, err)

	vd, td := Tables(d, val)
	require.NoError(t, vd.Validate())
	require.NoError(t, td.Validate())
	assert.Equal(t, []string{"spk1_000"}, vd.Table(manifest.Utt2Fs).Keys())
	assert.Equal(t, []string{"spk1"}, vd.Table(manifest.Spk2Gender).Keys())
	assert.Equal(t, []string{"spk0_000", "spk0_001"}, td.Manifest.IDs())
	assert.Equal(t, []string{"spk0"}, td.Table(manifest.Spk2Gender).Keys())
}
