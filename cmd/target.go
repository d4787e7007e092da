package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Himanshuwagh/OutPilot/internal/lead"
	"github.com/Himanshuwagh/OutPilot/internal/pipeline"
)

var targetCmd = &cobra.Command{
	Use:   "target",
	Short: "Find a contact at one company and email them",
	Example: `  outpilot target --company "Acme"
  outpilot target --company "Acme" --role "ML Engineer" --domain acme.io`,
	Run: func(cmd *cobra.Command, _ []string) {
		target(cmd)
	},
}

func init() {
	rootCmd.AddCommand(targetCmd)

	targetCmd.Flags().StringP("company", "c", "", "company to reach out to")
	targetCmd.Flags().StringP("role", "r", "", "role to mention in the email")
	targetCmd.Flags().String("domain", "", "company domain, skips domain discovery when it accepts mail")
	targetCmd.Flags().String("kind", string(lead.KindHiring), "opportunity kind: hiring, funding or both")
	targetCmd.Flags().Int("contacts", 0, "contacts to look up at the company (default from resolver.max-contacts)")

	targetCmd.MarkFlagRequired("company")
}

func target(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	flags := cmd.Flags()
	company, _ := flags.GetString("company")
	role, _ := flags.GetString("role")
	domain, _ := flags.GetString("domain")
	kind, _ := flags.GetString("kind")
	contacts, _ := flags.GetInt("contacts")

	switch lead.Kind(kind) {
	case lead.KindHiring, lead.KindFunding, lead.KindBoth:
	default:
		logger.Fatal("invalid kind", zap.String("kind", kind))
	}
	if contacts > 0 {
		config.Resolver.MaxContacts = contacts
	}

	app, err := newApplication(ctx, config, logger)
	if err != nil {
		logger.Fatal("preparing the run", zap.Error(err))
	}
	defer app.Close()

	summary, err := app.pipeline.Target(ctx, pipeline.Target{
		Company: company,
		Role:    role,
		Domain:  domain,
		Kind:    lead.Kind(kind),
	})
	if werr := app.metrics.WriteTextfile(config.Metrics.Textfile); werr != nil {
		logger.Warn("writing metrics textfile", zap.Error(werr))
	}
	printSummary(summary)
	if err != nil {
		logger.Error("targeted outreach failed", zap.Error(err))
		app.Close()
		os.Exit(1)
	}
}
