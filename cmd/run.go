package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/logger"
	"github.com/Himanshuwagh/OutPilot/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one batch: fetch, classify, resolve, draft and send",
	Run: func(_ *cobra.Command, _ []string) {
		run()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// run is the main command for the cli.
func run() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	app, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the run", zap.Error(err))
	}
	defer app.Close()

	summary, err := app.runOnce(ctx)
	printSummary(summary)
	if err != nil {
		logger.Error("run aborted", zap.Error(err))
		app.Close()
		os.Exit(1)
	}
}

// setup builds the logger and loads the config. Both are fatal on error.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Info("starting the outpilot", zap.String("version", version))

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	return logger, config
}

// runOnce runs the pipeline and exports metrics when configured.
func (a *application) runOnce(ctx context.Context) (*pipeline.Summary, error) {
	summary, err := a.pipeline.Run(ctx)

	if werr := a.metrics.WriteTextfile(a.config.Metrics.Textfile); werr != nil {
		a.logger.Warn("writing metrics textfile", zap.String("path", a.config.Metrics.Textfile), zap.Error(werr))
	}

	return summary, err
}

func printSummary(s *pipeline.Summary) {
	if s == nil {
		return
	}

	states := make([]string, 0, len(s.Counts))
	for state := range s.Counts {
		states = append(states, string(state))
	}
	sort.Strings(states)

	fmt.Printf("run %s: fetched %d in %s\n", s.RunID, s.Fetched, s.FinishedAt.Sub(s.StartedAt).Round(time.Millisecond))
	for _, state := range states {
		fmt.Printf("  %-10s %d\n", state, s.Counts[lead.State(state)])
	}
	for _, e := range s.Errors {
		fmt.Printf("  error: %s\n", e)
	}
	if s.Aborted {
		fmt.Println("  aborted")
	}
}

// redacted returns a copy of the config safe for debug output.
func redacted(c *Config) Config {
	out := *c
	hide := func(s *string) {
		if *s != "" {
			*s = "***"
		}
	}
	hide(&out.Dedup.Redis.Password)
	hide(&out.Draft.Gemini.APIKey)
	hide(&out.Send.SMTP.Password)
	hide(&out.Resolver.PeopleSearch.APIKey)
	hide(&out.Resolver.CodeHost.Token)

	out.Sources = append(out.Sources[:0:0], c.Sources...)
	for i := range out.Sources {
		hide(&out.Sources[i].Token)
	}
	return out
}
