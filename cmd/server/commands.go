package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"hrbenefits/internal/app/server"
	"hrbenefits/internal/domain/benefits"
	"hrbenefits/internal/platform/config"
	"hrbenefits/internal/platform/db"
)

type periodFlags struct {
	tenant string
	month  int
	year   int
}

func (f *periodFlags) bind(cmd *cobra.Command) {
	now := time.Now().UTC()
	cmd.Flags().StringVarP(&f.tenant, "tenant", "t", "", "Tenant id")
	cmd.Flags().IntVarP(&f.month, "month", "m", int(now.Month()), "Month (1-12)")
	cmd.Flags().IntVarP(&f.year, "year", "y", now.Year(), "Year")
	_ = cmd.MarkFlagRequired("tenant")
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hrbenefits",
		Short:         "Monthly employee benefits service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(config.Load())
		},
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newCalculateCmd(), newReconcileCmd(), newStatsCmd())
	return root
}

func setupLogging(cfg config.Config) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})
	slog.SetDefault(slog.New(handler))
}

// loadApp validates the configuration and builds the application graph.
func loadApp(ctx context.Context) (*server.App, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return server.New(ctx, cfg)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			app, err := loadApp(ctx)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Run(ctx)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}
			pool, err := db.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer pool.Close()
			applied, err := db.Migrate(cmd.Context(), pool, cfg.MigrationsDir)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				pterm.Info.Println("No pending migrations")
				return nil
			}
			for _, version := range applied {
				pterm.Success.Printfln("Applied %s", version)
			}
			return nil
		},
	}
}

func newCalculateCmd() *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "calculate",
		Short: "Calculate benefits for every eligible employee of a month",
		RunE: func(cmd *cobra.Command, args []string) error {
			period, err := benefits.NewPeriod(flags.month, flags.year)
			if err != nil {
				return err
			}
			app, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Calculating %s for tenant %s", period, flags.tenant))
			result, err := app.Jobs.CalculateMonth(cmd.Context(), flags.tenant, period)
			if err != nil {
				spinner.Fail(err.Error())
				return err
			}
			spinner.Success(fmt.Sprintf("Calculated %d records", result.Processed))
			renderSkipped(result)
			return nil
		},
	}
	flags.bind(cmd)
	return cmd
}

func newReconcileCmd() *cobra.Command {
	var flags periodFlags
	var refresh bool
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Mark provider-completed records of a month as paid",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			if refresh {
				polled, err := app.Benefits.RefreshProviderStatuses(cmd.Context(), flags.tenant, "system:cli", flags.month, flags.year)
				if err != nil {
					return err
				}
				pterm.Info.Printfln("Refreshed %d records from the provider", polled.Processed)
				renderSkipped(polled)
			}
			result, err := app.Benefits.Reconcile(cmd.Context(), flags.tenant, "system:cli", flags.month, flags.year)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Reconciled %d records", result.Processed)
			return nil
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&refresh, "refresh", true, "Poll the provider for batch statuses first")
	return cmd
}

func newStatsCmd() *cobra.Command {
	var flags periodFlags
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the monthly benefit totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := loadApp(cmd.Context())
			if err != nil {
				return err
			}
			defer app.Close()

			stats, err := app.Benefits.Statistics(cmd.Context(), flags.tenant, flags.month, flags.year)
			if err != nil {
				return err
			}
			return renderStatistics(stats)
		},
	}
	flags.bind(cmd)
	return cmd
}

func renderStatistics(stats benefits.Statistics) error {
	data := pterm.TableData{
		{"Benefit", "Total"},
		{"Vale refeição", stats.TotalMealVoucher.StringFixed(2)},
		{"Vale transporte", stats.TotalTransportVoucher.StringFixed(2)},
		{"Mobility", stats.TotalMobility.StringFixed(2)},
		{pterm.Bold.Sprint("Grand total"), pterm.Bold.Sprint(stats.GrandTotal.StringFixed(2))},
	}
	pterm.DefaultSection.Printfln("Benefits %s", stats.Month)
	if err := pterm.DefaultTable.WithHasHeader().WithHeaderStyle(pterm.NewStyle(pterm.FgLightCyan)).WithData(data).Render(); err != nil {
		return err
	}

	counts := pterm.TableData{{"Status", "Records"}}
	for _, status := range benefits.ActiveStatuses {
		counts = append(counts, []string{string(status), fmt.Sprint(stats.CountByStatus[status])})
	}
	pterm.Info.Printfln("%d employees, %d records", stats.EmployeeCount, stats.RecordCount)
	return pterm.DefaultTable.WithHasHeader().WithData(counts).Render()
}

func renderSkipped(result benefits.BatchResult) {
	if result.SkippedCount == 0 {
		return
	}
	data := pterm.TableData{{"ID", "Code", "Reason"}}
	for _, item := range result.Skipped {
		data = append(data, []string{item.ID, item.Code, item.Reason})
	}
	pterm.Warning.Printfln("%d skipped", result.SkippedCount)
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}
