package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/tbourn/go-chat-relay/internal/config"
	"github.com/tbourn/go-chat-relay/internal/repo"
)

func journalCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Print the most recent delivery journal rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			if cfg.JournalDBPath == "" {
				return errors.New("JOURNAL_DB_PATH is not set")
			}
			db, err := openJournal(cfg.JournalDBPath)
			if err != nil {
				return err
			}
			defer func() { _ = repo.Close(db) }()

			rows, err := repo.ListRecentDeliveries(cmd.Context(), db, limit)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tCHAT\tROUTE\tPROVIDER_ERROR\tDELIVERED\tSTATUS\tLATENCY")
			for _, d := range rows {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%dms\n",
					d.CreatedAt.UTC().Format(time.RFC3339), d.ChatID, d.Route,
					dash(d.ProviderError), d.Delivered, d.TransportStatus, d.LatencyMS)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of rows to print")
	return cmd
}

// openJournal opens the journal database and makes sure its schema exists.
func openJournal(path string) (*gorm.DB, error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		_ = repo.Close(db)
		return nil, fmt.Errorf("journal migrate: %w", err)
	}
	return db, nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
