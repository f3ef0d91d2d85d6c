package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pkgsmith/pkgsmith/pkg/stores"
)

func newHistoryCommand() *cobra.Command {
	var (
		limit      int
		statusFlag string
		pkgFlag    string
		prune      int
		withEvents bool
	)

	cmd := &cobra.Command{
		Use:   "history [operation-id]",
		Short: "Show past install operations",
		Long: `Show operations recorded in the history database, most recent first.
With an operation ID argument the full record is shown.

History is only recorded when history_path is configured.`,
		Example: `  # Show the last 20 operations
  pkgsmith history

  # Show aborted operations for one package
  pkgsmith history --status aborted --package neovim

  # Show one operation in full
  pkgsmith history 7d64bc2e-1f0a-4c5f-9f6e-0b1c2d3e4f50

  # Replay one operation's event stream
  pkgsmith history --events 7d64bc2e-1f0a-4c5f-9f6e-0b1c2d3e4f50

  # Keep only the 100 most recent records
  pkgsmith history --prune 100`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.HistoryPath == "" {
				return fmt.Errorf("no history database configured (set history_path)")
			}

			store := stores.NewSQLiteStore(stores.DefaultConfig(cfg.HistoryPath))
			if err := store.Init(ctx); err != nil {
				return err
			}
			defer store.Close()

			if prune > 0 {
				deleted, err := store.PruneOperations(ctx, prune)
				if err != nil {
					return err
				}
				fmt.Printf("Pruned %d operation(s)\n", deleted)
				return nil
			}

			if len(args) == 1 {
				op, err := store.GetOperation(ctx, args[0])
				if err != nil {
					return err
				}
				if !withEvents {
					return json.NewEncoder(os.Stdout).Encode(op)
				}
				events, err := store.ListEvents(ctx, op.ID)
				if err != nil {
					return err
				}
				if jsonOutput {
					return json.NewEncoder(os.Stdout).Encode(struct {
						Operation *stores.Operation    `json:"operation"`
						Events    []stores.EventRecord `json:"events"`
					}{op, events})
				}
				for _, ev := range events {
					line := fmt.Sprintf("%4d  %s  %-18s %s", ev.Seq,
						ev.Timestamp.Local().Format(time.DateTime), ev.Kind, ev.Package)
					if ev.Text != "" {
						line += "  " + ev.Text
					}
					fmt.Println(line)
				}
				return nil
			}

			ops, err := store.ListOperations(ctx, stores.OperationFilter{
				RootPackage: pkgFlag,
				Status:      statusFlag,
			}, limit, 0)
			if err != nil {
				return err
			}

			if jsonOutput {
				return json.NewEncoder(os.Stdout).Encode(ops)
			}

			for _, op := range ops {
				failed := ""
				if op.FailedPackage != nil {
					failed = " failed=" + *op.FailedPackage
				}
				fmt.Printf("%s  %-19s %-10s %-12s installed=%d skipped=%d%s\n",
					op.ID,
					op.StartedAt.Local().Format(time.DateTime),
					op.Status,
					op.RootPackage,
					op.Installed,
					op.AlreadyInstalled,
					failed)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum operations to list")
	cmd.Flags().StringVar(&statusFlag, "status", "", "filter by status (completed, aborted, canceled)")
	cmd.Flags().StringVar(&pkgFlag, "package", "", "filter by root package")
	cmd.Flags().IntVar(&prune, "prune", 0, "delete all but the N most recent records")
	cmd.Flags().BoolVar(&withEvents, "events", false, "with an operation ID, show its event stream")

	return cmd
}
