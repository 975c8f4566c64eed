package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"audio-curator/internal/curation"
	"audio-curator/internal/manifest"
)

func TestFilterKey_UnsetFollowsColumn(t *testing.T) {
	key, err := filterKey("")
	require.NoError(t, err)
	assert.Nil(t, key)

	list, err := curation.ReadCSV(strings.NewReader("filename,gender\nb.wav,f\n"), "list.csv")
	require.NoError(t, err)
	m := manifest.New(
		manifest.Entry{ID: "globe_a", Path: "/raw/a.wav"},
		manifest.Entry{ID: "globe_b", Path: "/raw/b.wav"},
	)
	kept, err := curation.Filter(m, list, curation.Options{Column: curation.ColFilename, Key: key})
	require.NoError(t, err)
	assert.Equal(t, []string{"globe_b"}, kept.IDs())
}

func TestFilterKey_Named(t *testing.T) {
	for _, name := range []string{"id", "filename", "stem"} {
		key, err := filterKey(name)
		require.NoError(t, err, name)
		assert.NotNil(t, key, name)
	}
	_, err := filterKey("guess")
	assert.Error(t, err)
}
