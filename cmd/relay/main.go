// Command relay runs the Telegram to LLM webhook relay and its maintenance
// commands.
//
//	relay serve                     start the HTTP server (default)
//	relay webhook set|delete|info   manage the bot's webhook registration
//	relay journal --limit N         print recent delivery journal rows
//
// Configuration comes from the environment; a .env file in the working
// directory is loaded first when present.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-chat-relay/internal/sysutil"
)

var version = "dev"

func main() {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("relay failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "relay",
		Short:         "Relay Telegram messages to an LLM and send the replies back",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			sysutil.SetupLogger(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_PRETTY") == "true")
		},
	}
	serve := serveCmd()
	root.RunE = serve.RunE
	root.AddCommand(serve, webhookCmd(), journalCmd())
	return root
}
