package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"expensetracker/internal/auth"
	"expensetracker/internal/backend"
	"expensetracker/internal/config"
	"expensetracker/internal/core"
	applog "expensetracker/internal/log"
	"expensetracker/internal/services"
	"expensetracker/internal/storage"
)

type ctl struct {
	logger *applog.Logger
	cfg    *config.Config

	dbPath string
	owner  string
	asJSON bool
}

func newRootCmd(logger *applog.Logger, cfg *config.Config) *cobra.Command {
	c := &ctl{logger: logger, cfg: cfg}

	root := &cobra.Command{
		Use:          "trackerctl",
		Short:        "Inspect and edit the expense tracker database",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVar(&c.dbPath, "db", cfg.SQLiteDBPath, "SQLite database path")

	root.AddCommand(c.migrateCmd(), c.totalsCmd(), c.listCmd(), c.addCmd())
	return root
}

func (c *ctl) ownerFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&c.owner, "owner", "", "owner id the command acts for")
	_ = cmd.MarkFlagRequired("owner")
}

func (c *ctl) session() auth.Session {
	return auth.Session{OwnerID: c.owner, Name: c.owner, IsAuthenticated: true}
}

// open builds a ledger service over the SQLite database. When AMQP is
// configured, added transactions are queued for the mirror and running
// servers are told about them.
func (c *ctl) open(ctx context.Context) (*services.LedgerService, func(), error) {
	res, err := backend.NewFactory(c.logger).CreateBackend(ctx, backend.Config{
		Type:               backend.SQLiteBackend,
		SQLiteDBPath:       c.dbPath,
		AMQPURL:            c.cfg.AMQPURL,
		AMQPExchange:       c.cfg.AMQPExchange,
		AMQPQueue:          c.cfg.AMQPQueue,
		AMQPEventsExchange: c.cfg.AMQPEventsExchange,
	})
	if err != nil {
		return nil, nil, err
	}
	opts := []services.Option{services.WithLogger(c.logger)}
	if res.AMQP != nil {
		opts = append(opts, services.WithSyncPublisher(res.AMQP))
	}
	cleanup := func() {
		if err := res.Cleanup(); err != nil {
			c.logger.Warn("Cleanup failed", applog.FieldError, err)
		}
	}
	return services.NewLedgerService(res.Store, res.Broker, opts...), cleanup, nil
}

func (c *ctl) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := os.MkdirAll(filepath.Dir(c.dbPath), 0o755); err != nil {
				return fmt.Errorf("create db directory: %w", err)
			}
			if err := storage.RunMigrations(c.dbPath); err != nil {
				return err
			}
			version, dirty, err := storage.MigrationVersion(c.dbPath)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
}

func (c *ctl) totalsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "totals",
		Short: "Print income, expenses and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ledger, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			totals := core.ComputeTotals(ledger)

			if c.asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"income":   totals.Income.Dollars(),
					"expenses": totals.Expenses.Dollars(),
					"balance":  totals.Balance.Dollars(),
					"negative": totals.Negative(),
				})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "Income\t%s\n", totals.Income.Format())
			fmt.Fprintf(tw, "Expenses\t%s\n", totals.Expenses.Format())
			fmt.Fprintf(tw, "Balance\t%s\n", totals.Balance.Format())
			return tw.Flush()
		},
	}
	c.ownerFlags(cmd)
	cmd.Flags().BoolVar(&c.asJSON, "json", false, "print JSON")
	return cmd
}

func (c *ctl) listCmd() *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest last",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := core.ParseViewMode(filter)
			if err != nil {
				return err
			}
			ledger, err := c.snapshot(cmd.Context())
			if err != nil {
				return err
			}
			view := core.View(ledger, mode)

			if c.asJSON {
				records := make([]core.Record, len(view))
				for i, t := range view {
					records[i] = core.RecordOf(t)
				}
				return writeJSON(cmd.OutOrStdout(), records)
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "DATE\tDESCRIPTION\tCATEGORY\tAMOUNT")
			for _, t := range view {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Date, t.Description, t.Category, t.Signed().Format())
			}
			return tw.Flush()
		},
	}
	c.ownerFlags(cmd)
	cmd.Flags().StringVar(&filter, "filter", "all", "all, income or expense")
	cmd.Flags().BoolVar(&c.asJSON, "json", false, "print JSON records")
	return cmd
}

func (c *ctl) addCmd() *cobra.Command {
	var description, amount, kind, category, date string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a transaction",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d := core.Draft{Description: description, Kind: kind, Category: category}

			value, err := core.ParseDecimal(amount)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amount, err)
			}
			d.Amount = value
			if date != "" {
				if d.Date, err = core.ParseDate(date); err != nil {
					return fmt.Errorf("%w %q: want YYYY-MM-DD", err, date)
				}
			}

			ledger, cleanup, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer cleanup()

			t, err := ledger.AddTransaction(cmd.Context(), c.session(), d)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %s %s %s\n", t.ID, t.Signed().Format(), t.Description)
			return nil
		},
	}
	c.ownerFlags(cmd)
	cmd.Flags().StringVar(&description, "description", "", "what the transaction was for")
	cmd.Flags().StringVar(&amount, "amount", "", "positive amount in dollars")
	cmd.Flags().StringVar(&kind, "kind", string(core.Expense), "income or expense")
	cmd.Flags().StringVar(&category, "category", string(core.CategoryOther), "category")
	cmd.Flags().StringVar(&date, "date", "", "date as YYYY-MM-DD (default today)")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func (c *ctl) snapshot(ctx context.Context) (core.Ledger, error) {
	ledger, cleanup, err := c.open(ctx)
	if err != nil {
		return core.Ledger{}, err
	}
	defer cleanup()
	return ledger.Snapshot(ctx, c.session())
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
