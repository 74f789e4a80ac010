package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/Veraticus/finbot/internal/cli"
	"github.com/spf13/cobra"
)

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Talk to the assistant from the terminal",
		Long: `Run the same message pipeline the webhook uses, reading messages from
stdin and printing replies. Charts are saved as PNG files.`,
		RunE: runChat,
	}

	cmd.Flags().String("account", "console", "account ID to chat as")
	cmd.Flags().String("image-dir", "", "directory for report charts (default: next to the database)")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := initStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer closeStorage(store)

	resolver, err := newResolver(cfg)
	if err != nil {
		return fmt.Errorf("failed to create intent resolver: %w", err)
	}

	imageDir, _ := cmd.Flags().GetString("image-dir")
	if imageDir == "" {
		imageDir = filepath.Join(filepath.Dir(cfg.Database.Path), "charts")
	}
	accountID, _ := cmd.Flags().GetString("account")

	out := cmd.OutOrStdout()
	dispatcher := newDispatcher(cfg, store, resolver, cli.NewConsoleNotifier(out, imageDir))
	reader := cli.NewLineReader(os.Stdin)

	fmt.Fprintln(out, cli.TitleStyle.Render("finbot")+cli.SubtleStyle.Render("  type a message, or 'quit' to exit"))

	for {
		fmt.Fprint(out, cli.FormatPrompt("you"))

		line, err := reader.ReadLine(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, cli.ErrInputCancelled) {
			fmt.Fprintln(out)
			return nil
		}
		if err != nil {
			return err
		}

		switch strings.ToLower(line) {
		case "quit", "exit":
			return nil
		case "":
			continue
		}

		if err := dispatcher.HandleMessage(ctx, accountID, line); err != nil {
			fmt.Fprintln(out, cli.FormatError(err.Error()))
		}
	}
}
