package main

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"audio-curator/internal/config"
	"audio-curator/internal/db"
	"audio-curator/internal/pipeline"
	"audio-curator/internal/scanner"
)

func selectCorpora(reg *config.Registry, names []string) ([]config.Corpus, error) {
	if len(names) == 0 {
		return reg.Corpora, nil
	}
	out := make([]config.Corpus, 0, len(names))
	for _, n := range names {
		c, ok := reg.Corpus(n)
		if !ok {
			return nil, fmt.Errorf("corpus %q is not in the registry", n)
		}
		out = append(out, *c)
	}
	return out, nil
}

func newPrepareCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "prepare [corpus...]",
		Short: "Scan, filter, resample and finalize corpora from the registry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			reg, err := a.registry()
			if err != nil {
				return err
			}
			corpora, err := selectCorpora(reg, args)
			if err != nil {
				return err
			}
			if dry, _ := cmd.Flags().GetBool("dry-run"); dry {
				return countCorpora(cmd, corpora)
			}
			res, err := a.resampler()
			if err != nil {
				return err
			}
			runner := a.runner()
			defer a.serveStatus(res, runner, reg)()

			if from, _ := cmd.Flags().GetString("from"); from != "" {
				if err := resetFrom(runner, corpora, from); err != nil {
					return err
				}
			}

			p := &pipeline.Preparer{
				Runner:    runner,
				Resampler: res,
				OutputDir: a.cfg.Resample.OutputDir,
				Log:       a.log,
			}
			for _, corpus := range corpora {
				if err := p.Prepare(cmd.Context(), corpus); err != nil {
					return err
				}
			}
			a.log.WithField("corpora", len(corpora)).Info("prepare finished")
			return nil
		},
	}
	c.Flags().String("from", "", "rerun from this stage (scan, filter, resample, finalize)")
	c.Flags().Bool("dry-run", false, "only count the audio files of each corpus")
	return c
}

func countCorpora(cmd *cobra.Command, corpora []config.Corpus) error {
	w := cmd.OutOrStdout()
	total := 0
	for _, c := range corpora {
		n, err := scanner.CountFiles(c.Root, c.Extensions)
		if err != nil {
			return fmt.Errorf("corpus %s: %w", c.Name, err)
		}
		total += n
		fmt.Fprintf(w, "%-20s %-7s %8d  %s\n", c.Name, c.Kind, n, c.Root)
	}
	fmt.Fprintf(w, "%-20s %-7s %8d\n", "total", "", total)
	return nil
}

// resetFrom clears the done markers of stage and every later stage.
func resetFrom(r *pipeline.Runner, corpora []config.Corpus, stage string) error {
	order := []string{pipeline.StageScan, pipeline.StageFilter, pipeline.StageResample, pipeline.StageFinalize}
	start := -1
	for i, s := range order {
		if s == stage {
			start = i
		}
	}
	if start < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	for _, c := range corpora {
		for _, s := range order[start:] {
			if err := r.Reset(c.Name, s); err != nil {
				return err
			}
		}
	}
	return nil
}

func newAssembleCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "assemble",
		Short: "Combine prepared corpora per kind and carve train/val",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			reg, err := a.registry()
			if err != nil {
				return err
			}
			runner := a.runner()
			defer a.serveStatus(nil, runner, reg)()

			if force, _ := cmd.Flags().GetBool("force"); force {
				for _, kind := range reg.Kinds() {
					if err := runner.Reset(pipeline.AssembleScope(kind), pipeline.StageAssemble); err != nil {
						return err
					}
				}
			}

			prep := &pipeline.Preparer{Runner: runner}
			asm := &pipeline.Assembler{
				Runner:  runner,
				DataDir: prep.DataDir,
				OutDir:  mustGetString(cmd, "out"),
				Log:     a.log,
			}
			return asm.Assemble(cmd.Context(), reg)
		},
	}
	c.Flags().String("out", "data", "output root; gets <kind>/train and <kind>/val")
	c.Flags().Bool("force", false, "assemble again even if already done")
	return c
}

func newExportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "export",
		Short: "Write the assembled output to the MariaDB catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			reg, err := a.registry()
			if err != nil {
				return err
			}
			dbc := a.cfg.Database
			database, err := db.New(dbc.Host, dbc.Port, dbc.User, dbc.Password, dbc.Name)
			if err != nil {
				return fmt.Errorf("db: %w", err)
			}
			defer database.Close()
			a.log.WithFields(logrus.Fields{"host": dbc.Host, "db": dbc.Name}).Info("connected to MariaDB")

			runID := mustGetString(cmd, "run-id")
			if runID == "" {
				runID = db.NewRunID()
			}
			out, err := filepath.Abs(mustGetString(cmd, "out"))
			if err != nil {
				return err
			}
			n, err := pipeline.Export(cmd.Context(), database, out, runID, reg.Kinds(), a.cfg.Resample.Workers, a.log)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d utterances\n", runID, n)
			return nil
		},
	}
	c.Flags().String("out", "data", "assembled output root")
	c.Flags().String("run-id", "", "catalog run id (default: new uuid)")
	return c
}

func mustGetString(cmd *cobra.Command, name string) string {
	v, _ := cmd.Flags().GetString(name)
	return v
}
