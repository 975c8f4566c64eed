package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"audio-curator/internal/audio"
	"audio-curator/internal/config"
	"audio-curator/internal/curation"
	"audio-curator/internal/manifest"
	"audio-curator/internal/merge"
	"audio-curator/internal/pipeline"
	"audio-curator/internal/scanner"
	"audio-curator/internal/split"
)

// The commands in this file run a single step on explicit data dirs,
// without the registry or done markers.

func newScanCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "scan <root> <out-dir>",
		Short: "Build a data dir from the audio files under root",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			strat, err := scanner.ByName(mustGetString(cmd, "strategy"), mustGetString(cmd, "prefix"))
			if err != nil {
				return err
			}
			exts, _ := cmd.Flags().GetStringSlice("ext")
			d, err := scanner.Scan(args[0], scanner.Options{Extensions: exts, Strategy: strat, Logger: a.log})
			if err != nil {
				return err
			}
			return d.Save(args[1])
		},
	}
	c.Flags().String("strategy", "stem", "id strategy: stem, speaker_dir, librispeech")
	c.Flags().String("prefix", "", "id prefix (stem) or speaker prefix")
	c.Flags().StringSlice("ext", []string{".wav", ".flac"}, "extensions to pick up")
	return c
}

func newFilterCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "filter <data-dir> <list> <out-dir>",
		Short: "Keep (or drop) the entries named by a curation list",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := manifest.LoadDir(args[0], manifest.LoadOptions{})
			if err != nil {
				return err
			}
			list, err := curation.Load(args[1])
			if err != nil {
				return err
			}
			key, err := filterKey(mustGetString(cmd, "key"))
			if err != nil {
				return err
			}
			exclude, _ := cmd.Flags().GetBool("exclude")
			kept, err := curation.Filter(d.Manifest, list, curation.Options{
				Column:  mustGetString(cmd, "column"),
				Key:     key,
				Exclude: exclude,
				Logger:  a.log,
			})
			if err != nil {
				return err
			}
			return d.Restrict(kept.IDSet()).Save(args[2])
		},
	}
	c.Flags().String("column", "", "list column to match (default uid, then filename)")
	c.Flags().String("key", "", "entry key: id, filename, stem (default follows the column)")
	c.Flags().Bool("exclude", false, "drop listed entries instead of keeping them")
	return c
}

// filterKey resolves --key. Empty leaves the choice to curation.Filter,
// which matches the key to the column.
func filterKey(name string) (curation.KeyFunc, error) {
	switch name {
	case "":
		return nil, nil
	case config.KeyID:
		return curation.ByID, nil
	case config.KeyFilename:
		return curation.ByFilename, nil
	case config.KeyStem:
		return curation.ByStem, nil
	}
	return nil, fmt.Errorf("unknown key %q", name)
}

func newResampleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resample <data-dir> <out-dir>",
		Short: "Resample every entry to TARGET_SAMPLE_RATE under OUTPUT_DIR",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := manifest.LoadDir(args[0], manifest.LoadOptions{})
			if err != nil {
				return err
			}
			res, err := a.resampler()
			if err != nil {
				return err
			}
			defer a.serveStatus(res, a.runner(), nil)()

			result, err := res.Run(cmd.Context(), d)
			if result != nil && len(result.Failures) > 0 {
				if werr := pipeline.WriteFailures(filepath.Join(args[1], "resample_failures"), result.Failures); werr != nil {
					return werr
				}
			}
			if err != nil {
				return err
			}
			return result.Dir.Save(args[1])
		},
	}
}

func newCombineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "combine <out-dir> <data-dir>...",
		Short: "Concatenate data dirs; ids must be unique across them",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sources := make([]merge.Source, 0, len(args)-1)
			for _, dir := range args[1:] {
				d, err := manifest.LoadDir(dir, manifest.LoadOptions{})
				if err != nil {
					return err
				}
				sources = append(sources, merge.Source{Name: dir, Dir: d})
			}
			fields, dropped := pipeline.CommonTables(sources)
			if len(dropped) > 0 {
				a.log.WithField("tables", dropped).Warn("tables missing in some inputs are not combined")
			}
			d, err := merge.Combine(sources, fields)
			if err != nil {
				return err
			}
			return d.Save(args[0])
		},
	}
}

func newNormalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "normalize <data-dir> [out-dir]",
		Short: "Sort and dedup a data dir, then validate it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := manifest.LoadDir(args[0], manifest.LoadOptions{AllowDuplicates: true})
			if err != nil {
				return err
			}
			if dups := d.Manifest.Duplicates(); len(dups) > 0 {
				a.log.WithFields(logrus.Fields{"ids": len(dups), "first": manifest.FirstN(dups, 5)}).
					Warn("repeated ids, identical rows are merged")
			}
			out, err := merge.Normalize(d)
			if err != nil {
				return err
			}
			dst := args[0]
			if len(args) == 2 {
				dst = args[1]
			}
			a.log.WithFields(logrus.Fields{"in": d.Manifest.Len(), "out": out.Manifest.Len()}).Info("normalized")
			return out.Save(dst)
		},
	}
}

func newCarveCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "carve <data-dir> <out-root>",
		Short: "Split a normalized data dir into out-root/train and out-root/val",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			d, err := manifest.LoadDir(args[0], manifest.LoadOptions{})
			if err != nil {
				return err
			}
			minTotal, _ := cmd.Flags().GetInt("min-total")
			perSpk, _ := cmd.Flags().GetInt("max-per-speaker")
			balance, _ := cmd.Flags().GetBool("balance-gender")
			vs := &config.ValSplit{
				MinTotal:      minTotal,
				MaxPerSpeaker: perSpk,
				BalanceGender: balance,
				List:          mustGetString(cmd, "list"),
			}
			if vs.List == "" && vs.MinTotal <= 0 {
				return errors.New("need --min-total or --list")
			}
			val, err := pipeline.Carve(d, vs, a.log)
			if err != nil {
				return err
			}
			valDir, trainDir := split.Tables(d, val)
			if err := trainDir.Save(filepath.Join(args[1], "train")); err != nil {
				return err
			}
			if err := valDir.Save(filepath.Join(args[1], "val")); err != nil {
				return err
			}
			return pipeline.WriteValList(filepath.Join(args[1], "val.lst"), valDir.Manifest)
		},
	}
	c.Flags().Int("min-total", 0, "validation utterances to reach")
	c.Flags().Int("max-per-speaker", 10, "utterances taken from one speaker")
	c.Flags().Bool("balance-gender", false, "alternate male and female speakers")
	c.Flags().String("list", "", "take the validation ids from this list instead")
	return c
}

func newProbeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "probe <file>...",
		Short: "Print ffprobe metadata of audio files as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, path := range args {
				m, err := audio.Probe(cmd.Context(), path)
				if err != nil {
					return err
				}
				if err := enc.Encode(struct {
					Path string `json:"path"`
					*audio.Metadata
				}{path, m}); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newCarveListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "carve-list <master-wav.scp> <id-list> <out-wav.scp>",
		Short: "Rebuild a validation manifest from a shared id list",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			missing, err := pipeline.CarveList(args[0], args[1], args[2], a.log)
			if err != nil {
				return err
			}
			if len(missing) > 0 {
				fmt.Fprintf(cmd.ErrOrStderr(), "%d ids not in master: %s\n", len(missing), manifest.FirstN(missing, 10))
			}
			return nil
		},
	}
}
