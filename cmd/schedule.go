package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/scheduler"
)

const dailyJob = "daily-run"

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the batch on a cron schedule until interrupted",
	Run: func(_ *cobra.Command, _ []string) {
		schedule()
	},
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().String("cron", "", "five-field cron schedule (default \"0 6 * * *\")")
	scheduleCmd.Flags().Bool("run-on-start", false, "run one batch right away")

	viper.BindPFlag("schedule.cron", scheduleCmd.Flags().Lookup("cron"))
	viper.BindPFlag("schedule.run-on-start", scheduleCmd.Flags().Lookup("run-on-start"))
}

func schedule() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()
	if config.Schedule.Cron == "" {
		config.Schedule.Cron = scheduler.DefaultSchedule
	}

	app, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the scheduler", zap.Error(err))
	}
	defer app.Close()

	// the pipeline bounds each run with its own timeout
	sched, err := scheduler.New(config.Schedule.Timezone, 0, logger.Named("scheduler"))
	if err != nil {
		logger.Fatal("creating the scheduler", zap.Error(err))
	}

	job := func(ctx context.Context) error {
		summary, err := app.runOnce(ctx)
		printSummary(summary)
		return err
	}

	if err := sched.AddJob(dailyJob, config.Schedule.Cron, job); err != nil {
		logger.Fatal("scheduling the run", zap.Error(err))
	}

	sched.Start()
	for _, j := range sched.ListJobs() {
		logger.Info("next run", zap.String("job", j.Name), zap.Time("at", j.NextRun))
	}

	if config.Schedule.RunOnStart {
		if err := sched.RunNow(dailyJob, job); err != nil {
			logger.Error("job failed", zap.String("job", dailyJob), zap.Error(err))
		}
	}

	<-ctx.Done()
	logger.Info("shutting down", zap.String("reason", context.Cause(ctx).Error()))

	select {
	case <-sched.Stop().Done():
	case <-time.After(time.Minute):
		logger.Warn("running job did not stop in time")
	}
}
