// =============================================================================
// Tally Import - Watch Command
// =============================================================================
//
// This file defines the 'watch' command, which imports whatever exports have
// arrived in the input directory on a cron schedule until interrupted.
//
// COMMAND USAGE:
//   tally-import watch [flags]
//
// SCHEDULING:
//   The schedule comes from watch_schedule (or --schedule). Five-field cron
//   expressions and descriptors such as "@every 5m" or "@hourly" are
//   accepted. A tick that arrives while the previous batch is still running
//   is skipped, so at most one import runs at a time.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ginjaninja78/tally-import/internal/importer"
	"github.com/ginjaninja78/tally-import/pkg/utils"
)

var (
	watchOpts importFlags

	// schedule overrides watch_schedule.
	schedule string

	// runNow imports once before waiting for the first tick.
	runNow bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Import new exports on a schedule",
	Long: `The watch command keeps running and imports every export found in the
input directory each time the schedule fires. Stop it with Ctrl+C; a batch in
progress stops before its next database write.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runWatch(cmd.Context(), watchOpts)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression, overrides watch_schedule")
	watchCmd.Flags().BoolVar(&runNow, "now", false, "Import once immediately, then follow the schedule")
	addImportFlags(watchCmd, &watchOpts)
}

func runWatch(ctx context.Context, flags importFlags) error {
	if err := flags.apply(mainConfig); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if schedule != "" {
		mainConfig.WatchSchedule = schedule
	}
	if err := mainConfig.EnsureDirectories(); err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, mainConfig)
	if err != nil {
		return err
	}
	defer closeStore()

	im, files, err := newImporter(store, mainConfig, flags)
	if err != nil {
		return err
	}

	tick := func() {
		runBatch(ctx, im, files)
	}

	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{logger.Sugar()}),
		cron.SkipIfStillRunning(cronLogger{logger.Sugar()}),
	))
	if _, err := c.AddFunc(mainConfig.WatchSchedule, tick); err != nil {
		return fmt.Errorf("invalid watch schedule %q: %w", mainConfig.WatchSchedule, err)
	}

	if runNow {
		tick()
	}

	c.Start()
	logger.Info("watching for exports",
		zap.String("input_dir", mainConfig.InputDir),
		zap.String("schedule", mainConfig.WatchSchedule),
	)

	<-ctx.Done()
	logger.Info("stopping; waiting for the running import to finish")
	<-c.Stop().Done()
	return nil
}

// runBatch imports the input directory once and logs the outcome.
func runBatch(ctx context.Context, im *importer.Importer, files *utils.FileManager) {
	results, batch, err := im.ImportDir(ctx)
	if err != nil {
		logger.Error("failed to discover input files", zap.Error(err))
		return
	}
	if batch.TotalFiles == 0 && batch.PendingFiles == 0 {
		logger.Debug("no exports found")
		return
	}
	if err := finishBatch(files, results, batch); err != nil {
		logger.Warn("batch finished with failures", zap.Error(err))
	}
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
