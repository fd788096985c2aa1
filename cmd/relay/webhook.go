package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbourn/go-chat-relay/internal/config"
	"github.com/tbourn/go-chat-relay/internal/sysutil"
)

func webhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the bot's webhook registration",
	}
	cmd.AddCommand(webhookSetCmd(), webhookDeleteCmd(), webhookInfoCmd())
	return cmd
}

func webhookSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set [url]",
		Short: "Point the bot at url (defaults to WEBHOOK_URL)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			var arg string
			if len(args) == 1 {
				arg = args[0]
			}
			url := sysutil.FirstNonEmpty(arg, cfg.Telegram.WebhookURL)
			if url == "" {
				return errors.New("webhook url required: pass it as an argument or set WEBHOOK_URL")
			}
			tr, err := newTransport(cfg.Telegram)
			if err != nil {
				return err
			}
			if err := tr.RegisterWebhook(url); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook set for @%s: %s\n", tr.Username(), url)
			return nil
		},
	}
}

func webhookDeleteCmd() *cobra.Command {
	var dropPending bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			tr, err := newTransport(cfg.Telegram)
			if err != nil {
				return err
			}
			if err := tr.DeleteWebhook(dropPending); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "webhook deleted for @%s\n", tr.Username())
			return nil
		},
	}
	cmd.Flags().BoolVar(&dropPending, "drop-pending", false, "also drop updates waiting for delivery")
	return cmd
}

func webhookInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Print the current webhook status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			tr, err := newTransport(cfg.Telegram)
			if err != nil {
				return err
			}
			info, err := tr.WebhookInfo()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}
