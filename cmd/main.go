package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"audio-curator/internal/api"
	"audio-curator/internal/audio"
	"audio-curator/internal/config"
	"audio-curator/internal/logging"
	"audio-curator/internal/pipeline"
	"audio-curator/internal/service"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "curator",
		Short:         "Curate audio corpora into Kaldi-style train/val data dirs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("env", ".env", "path to .env file")
	rootCmd.PersistentFlags().String("log-level", "", "override LOG_LEVEL")

	rootCmd.AddCommand(newScanCmd())
	rootCmd.AddCommand(newFilterCmd())
	rootCmd.AddCommand(newResampleCmd())
	rootCmd.AddCommand(newCombineCmd())
	rootCmd.AddCommand(newNormalizeCmd())
	rootCmd.AddCommand(newCarveCmd())
	rootCmd.AddCommand(newCarveListCmd())
	rootCmd.AddCommand(newPrepareCmd())
	rootCmd.AddCommand(newAssembleCmd())
	rootCmd.AddCommand(newExportCmd())
	rootCmd.AddCommand(newProbeCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// app is what every subcommand needs: config and the process logger.
type app struct {
	cfg    *config.Config
	log    *logrus.Logger
	closer io.Closer
}

func setup(cmd *cobra.Command) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env")
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	log, closer, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, log: log, closer: closer}, nil
}

func (a *app) Close() { a.closer.Close() }

func (a *app) registry() (*config.Registry, error) {
	return config.LoadCorpora(a.cfg.Data.CorporaFile)
}

func (a *app) runner() *pipeline.Runner {
	return pipeline.NewRunner(a.cfg.Data.WorkDir, a.log)
}

func (a *app) resampler() (*service.Resampler, error) {
	t, err := audio.NewTranscoder(a.cfg.Resample.Backend)
	if err != nil {
		return nil, err
	}
	rc := a.cfg.Resample
	return service.NewResampler(t, service.ResampleOptions{
		TargetRate:     rc.TargetRate,
		Workers:        rc.Workers,
		BatchSize:      rc.BatchSize,
		MaxFiles:       rc.MaxFiles,
		OutputDir:      rc.OutputDir,
		ItemTimeout:    rc.ItemTimeout,
		MaxFilesPerDir: rc.MaxFilesPerDir,
	}, a.log), nil
}

// serveStatus starts the status server when STATUS_ADDR is set. The
// returned func shuts it down.
func (a *app) serveStatus(res *service.Resampler, runner *pipeline.Runner, reg *config.Registry) func() {
	if a.cfg.Server.Addr == "" {
		return func() {}
	}
	var mon api.ResampleMonitor
	if res != nil {
		mon = res
	}
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.NewRouter(api.NewHandlers(mon, runner, reg), a.log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.log.WithField("addr", srv.Addr).Info("status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.WithError(err).Error("status server stopped")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
