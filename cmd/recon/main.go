// Command recon is the operator CLI: inspect vendors, re-enqueue stuck
// documents, run the expiration sweep once, and export summaries.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
	"go.uber.org/zap"

	"invoice-recon/internal/config"
	"invoice-recon/internal/export"
	"invoice-recon/internal/queue"
	"invoice-recon/internal/repository"
	"invoice-recon/pkg/database"
	"invoice-recon/pkg/utils"
)

var configFile string

func main() {
	_ = gotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "recon: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "recon",
		Short:        "Invoice reconciliation operator CLI",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "configs/config.yaml", "Config file to use")
	cmd.AddCommand(
		newVendorsCmd(),
		newStatsCmd(),
		newReprocessCmd(),
		newExpireCmd(),
		newExportCmd(),
	)
	return cmd
}

// deps opens the database and repositories for one command invocation.
type deps struct {
	cfg       *config.Config
	db        *database.DB
	logger    *zap.Logger
	vendors   *repository.VendorRepository
	contracts *repository.ContractRepository
	invoices  *repository.InvoiceRepository
}

func openDeps() (*deps, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      "warn",
		OutputPath: "stderr",
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	db, err := database.New(database.Config{
		Path:            cfg.Database.Path,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return &deps{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		vendors:   repository.NewVendorRepository(db.DB, logger),
		contracts: repository.NewContractRepository(db.DB, logger),
		invoices:  repository.NewInvoiceRepository(db.DB, logger),
	}, nil
}

func (d *deps) close() {
	_ = d.db.Close()
	_ = d.logger.Sync()
}

func newVendorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vendors",
		Short: "List vendors with reconciliation totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.close()

			vendors, err := d.vendors.List()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tINVOICES\tDISCREPANCIES\tSAVINGS")
			for _, v := range vendors {
				fmt.Fprintf(w, "%s\t%s\t%d\t$%.2f\t$%.2f\n",
					v.ID, v.Name, v.TotalInvoices, v.TotalDiscrepancies, v.TotalSavings)
			}
			return w.Flush()
		},
	}
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats <vendor-id>",
		Short: "Show reconciliation stats for one vendor",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.close()

			stats, err := d.vendors.Stats(args[0])
			if err != nil {
				return err
			}

			fmt.Printf("Total invoices:       %d\n", stats.TotalInvoices)
			fmt.Printf("Active contracts:     %d\n", stats.ActiveContracts)
			fmt.Printf("Total discrepancies:  $%.2f\n", stats.TotalDiscrepancies)
			fmt.Printf("Total savings:        $%.2f\n", stats.TotalSavings)
			fmt.Printf("Avg savings/invoice:  $%.2f\n", stats.AverageSavingsPerInvoice)
			return nil
		},
	}
}

func newReprocessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reprocess",
		Short: "Re-enqueue a document through the pipeline",
	}
	cmd.AddCommand(newReprocessContractCmd(), newReprocessInvoiceCmd())
	return cmd
}

func newReprocessContractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "contract <contract-id>",
		Short: "Re-enqueue a contract for extraction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.close()

			contract, err := d.contracts.GetByID(args[0])
			if err != nil {
				return err
			}

			enqueuer := queue.NewEnqueuer(d.cfg.Queue.RedisAddr, d.logger)
			defer enqueuer.Close()

			payload := queue.DocumentPayload{
				DocumentID: contract.ID,
				FileKey:    contract.FileKey,
				VendorID:   contract.VendorID,
			}
			if err := enqueuer.EnqueueContract(cmd.Context(), payload); err != nil {
				return err
			}
			fmt.Printf("contract %s enqueued\n", contract.ID)
			return nil
		},
	}
}

func newReprocessInvoiceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "invoice <invoice-id>",
		Short: "Re-enqueue an invoice for parsing and reconciliation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.close()

			invoice, err := d.invoices.GetByID(args[0])
			if err != nil {
				return err
			}

			enqueuer := queue.NewEnqueuer(d.cfg.Queue.RedisAddr, d.logger)
			defer enqueuer.Close()

			payload := queue.DocumentPayload{
				DocumentID: invoice.ID,
				FileKey:    invoice.FileKey,
				VendorID:   invoice.VendorID,
			}
			if err := enqueuer.EnqueueInvoice(cmd.Context(), payload); err != nil {
				return err
			}
			fmt.Printf("invoice %s enqueued\n", invoice.ID)
			return nil
		},
	}
}

func newExpireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire contracts whose end date has passed",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.close()

			expired, err := d.contracts.ExpireOverdue(time.Now().UTC())
			if err != nil {
				return err
			}
			for _, id := range expired {
				fmt.Printf("expired contract %s\n", id)
			}
			fmt.Printf("%d contract(s) expired\n", len(expired))
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a vendor summary workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := openDeps()
			if err != nil {
				return err
			}
			defer d.close()

			vendors, err := d.vendors.List()
			if err != nil {
				return err
			}

			f, err := export.VendorSummaryWorkbook(vendors)
			if err != nil {
				return err
			}
			defer f.Close()

			if err := f.SaveAs(output); err != nil {
				return fmt.Errorf("write workbook: %w", err)
			}
			fmt.Printf("wrote %s (%d vendors)\n", output, len(vendors))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "vendor-summary.xlsx", "Output file path")
	return cmd
}
