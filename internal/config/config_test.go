package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, 24000, cfg.Resample.TargetRate)
	assert.Equal(t, 8, cfg.Resample.Workers)
	assert.Equal(t, 1000, cfg.Resample.BatchSize)
	assert.Equal(t, 0, cfg.Resample.MaxFiles)
	assert.Equal(t, 2*time.Minute, cfg.Resample.ItemTimeout)
	assert.Equal(t, "ffmpeg", cfg.Resample.Backend)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_EnvFileAndOverrides(t *testing.T) {
	env := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(env, []byte(
		"TARGET_SAMPLE_RATE=16000\nRESAMPLE_WORKERS=3\nITEM_TIMEOUT=45s\nOUTPUT_DIR=/tmp/out\nDB_PORT=53306\n"), 0o644))
	t.Setenv("RESAMPLE_WORKERS", "12")
	t.Setenv("RESAMPLE_BATCH_SIZE", "not-a-number")

	// godotenv.Load sets variables for the rest of the process.
	for _, k := range []string{"TARGET_SAMPLE_RATE", "ITEM_TIMEOUT", "OUTPUT_DIR", "DB_PORT"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load(env)
	require.NoError(t, err)
	assert.Equal(t, 16000, cfg.Resample.TargetRate)
	assert.Equal(t, 12, cfg.Resample.Workers)
	assert.Equal(t, 1000, cfg.Resample.BatchSize)
	assert.Equal(t, 45*time.Second, cfg.Resample.ItemTimeout)
	assert.Equal(t, "/tmp/out", cfg.Resample.OutputDir)
	assert.Equal(t, 53306, cfg.Database.Port)
}

const registryYAML = `
corpora:
  - name: globe
    root: download/globe
    strategy: speaker_dir
    speaker_prefix: globe_
    extensions: [.wav]
    curation:
      path: lists/globe.csv
      key: speaker_filename
      genders: true
  - name: fsd50k
    kind: noise
    root: download/fsd50k
    prefix: fsd50k_
    max_files: 5000
    curation:
      path: lists/fsd50k.csv
val:
  speech:
    min_total: 1000
    balance_gender: true
  noise:
    list: lists/noise_val.lst
`

func writeRegistry(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "corpora.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadCorpora(t *testing.T) {
	reg, err := LoadCorpora(writeRegistry(t, registryYAML))
	require.NoError(t, err)
	require.Len(t, reg.Corpora, 2)

	globe, ok := reg.Corpus("globe")
	require.True(t, ok)
	assert.Equal(t, KindSpeech, globe.Kind)
	assert.Equal(t, KeySpeakerFilename, globe.Curation.Key)
	assert.True(t, globe.Curation.Genders)

	fsd, ok := reg.Corpus("fsd50k")
	require.True(t, ok)
	assert.Equal(t, "stem", fsd.Strategy)
	assert.Equal(t, []string{".wav", ".flac"}, fsd.Extensions)
	assert.Equal(t, KeyID, fsd.Curation.Key)
	assert.Equal(t, 5000, fsd.MaxFiles)

	require.Contains(t, reg.Val, KindSpeech)
	assert.Equal(t, 1000, reg.Val[KindSpeech].MinTotal)
	assert.Equal(t, 10, reg.Val[KindSpeech].MaxPerSpeaker)
	assert.Equal(t, "lists/noise_val.lst", reg.Val[KindNoise].List)
	assert.NotContains(t, reg.Val, KindRIR)

	assert.Equal(t, []string{KindSpeech, KindNoise}, reg.Kinds())
	assert.Len(t, reg.OfKind(KindNoise), 1)

	_, ok = reg.Corpus("nope")
	assert.False(t, ok)
}

func TestLoadCorpora_Invalid(t *testing.T) {
	cases := map[string]string{
		"empty":         "corpora: []\n",
		"no root":       "corpora:\n  - name: a\n",
		"bad kind":      "corpora:\n  - name: a\n    root: r\n    kind: music\n",
		"bad strategy":  "corpora:\n  - name: a\n    root: r\n    strategy: magic\n",
		"duplicate":     "corpora:\n  - name: a\n    root: r\n  - name: a\n    root: r\n",
		"bad key":       "corpora:\n  - name: a\n    root: r\n    curation:\n      path: x\n      key: md5\n",
		"val kind":      "corpora:\n  - name: a\n    root: r\nval:\n  music:\n    min_total: 3\n",
		"val no quota":  "corpora:\n  - name: a\n    root: r\nval:\n  speech:\n    balance_gender: true\n",
		"unknown field": "corpora:\n  - name: a\n    root: r\n    colour: red\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadCorpora(writeRegistry(t, body))
			assert.Error(t, err)
		})
	}
}
