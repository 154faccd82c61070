package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/dvloznov/momo-sms-api/internal/logger"
	"github.com/dvloznov/momo-sms-api/internal/sms"
	"github.com/dvloznov/momo-sms-api/internal/source"
	"github.com/dvloznov/momo-sms-api/internal/store"
	"github.com/spf13/cobra"
)

var (
	logLevel string
	output   string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "momo-cli",
		Short:         "Inspect mobile-money SMS exports",
		Long:          `A CLI tool to parse MoMo SMS bodies and SMS backup XML exports into structured transactions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")

	exportCmd := &cobra.Command{
		Use:   "export [xml-file|gs://bucket/object]",
		Short: "Write every parsed transaction of an export as JSON",
		Args:  cobra.ExactArgs(1),
		RunE:  runExport,
	}
	exportCmd.Flags().StringVarP(&output, "output", "o", "-", "Destination: '-' for stdout, a file path, or gs://bucket/object")

	root.AddCommand(
		&cobra.Command{
			Use:   "parse [sms-body]",
			Short: "Parse a single SMS body and print the extracted fields",
			Args:  cobra.ExactArgs(1),
			RunE:  runParse,
		},
		&cobra.Command{
			Use:   "inspect [xml-file|gs://bucket/object]",
			Short: "Summarize the transactions found in an SMS export",
			Args:  cobra.ExactArgs(1),
			RunE:  runInspect,
		},
		exportCmd,
	)
	return root
}

func commandContext(cmd *cobra.Command) (context.Context, error) {
	log, err := logger.NewWithConfig(logger.Config{Level: logLevel, Out: cmd.ErrOrStderr()})
	if err != nil {
		return nil, err
	}
	return logger.WithContext(cmd.Context(), log), nil
}

func openStore(ctx context.Context, location string) (*store.Store, error) {
	return store.Open(ctx, source.NewFetcher(), location, time.Now)
}

func runParse(cmd *cobra.Command, args []string) error {
	f := sms.ParseBody(args[0])
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"txid":               f.TxID,
		"category":           f.Category,
		"amount":             f.Amount,
		"counterparty_name":  f.CounterpartyName,
		"counterparty_phone": f.CounterpartyPhone,
		"fee":                f.Fee,
		"new_balance":        f.NewBalance,
	})
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx, err := commandContext(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}

	txs := s.List()
	counts := make(map[string]int)
	var total, fees int64
	for _, tx := range txs {
		name := "Uncategorized"
		if tx.Category != nil {
			name = string(*tx.Category)
		}
		counts[name]++
		if tx.Amount != nil {
			total += *tx.Amount
		}
		if tx.Fee != nil {
			fees += *tx.Fee
		}
	}

	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\n=== %s ===\n", source.Filename(args[0]))
	fmt.Fprintf(out, "Transactions: %d\n", len(txs))
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %d\n", name, counts[name])
	}
	fmt.Fprintf(out, "Total amount: %d RWF\n", total)
	fmt.Fprintf(out, "Total fees:   %d RWF\n", fees)
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx, err := commandContext(cmd)
	if err != nil {
		return err
	}

	s, err := openStore(ctx, args[0])
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]interface{}{"transactions": s.List()}); err != nil {
		return fmt.Errorf("encode transactions: %w", err)
	}

	log := logger.FromContext(ctx)
	switch {
	case output == "-":
		_, err = io.Copy(cmd.OutOrStdout(), &buf)
		return err
	case source.IsGCS(output):
		if err := source.Upload(ctx, output, &buf, "application/json"); err != nil {
			return fmt.Errorf("upload export: %w", err)
		}
	default:
		if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
	}

	log.Info().Str("output", output).Int("transactions", s.Len()).Msg("Export written")
	return nil
}
