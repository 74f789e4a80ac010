package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/finbot/internal/billing"
	"github.com/Veraticus/finbot/internal/cli"
	"github.com/Veraticus/finbot/internal/messenger"
	"github.com/Veraticus/finbot/internal/service"
	"github.com/spf13/cobra"
)

func billingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "billing",
		Short: "Manage recurring subscription charges",
	}

	run := &cobra.Command{
		Use:   "run",
		Short: "Post every subscription charge that is due",
		Long: `Run one billing cycle: post a charge for each elapsed period of every
active subscription that is due and advance it to its next billing date.
Running it again is harmless; periods already charged are skipped.`,
		RunE: runBilling,
	}
	run.Flags().Bool("notify", false, "send renewal messages over Messenger")
	run.Flags().String("at", "", "bill as of this RFC 3339 time instead of now")

	cmd.AddCommand(run)
	return cmd
}

func runBilling(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	now := time.Now()
	if at, _ := cmd.Flags().GetString("at"); at != "" {
		now, err = time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("invalid --at time: %w", err)
		}
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	var notifier service.Notifier = cli.NewConsoleNotifier(cmd.OutOrStdout(), os.TempDir())
	if send, _ := cmd.Flags().GetBool("notify"); send {
		client, clientErr := messenger.NewClient(messenger.ClientConfig{
			AccessToken: cfg.Messenger.AccessToken,
			BaseURL:     cfg.Messenger.BaseURL,
			APIVersion:  cfg.Messenger.APIVersion,
		}, slog.Default())
		if clientErr != nil {
			return fmt.Errorf("failed to create messenger client: %w", clientErr)
		}
		notifier = client
	}

	summary, err := billing.NewEngine(store, notifier, slog.Default()).RunBillingCycle(ctx, now)
	if err != nil {
		return fmt.Errorf("billing cycle failed: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderBillingSummary(summary))
	return nil
}
