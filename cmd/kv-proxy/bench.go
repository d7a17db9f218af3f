package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Sternrassler/kvpool/pkg/bench"
	"github.com/spf13/cobra"
)

func benchCmd() *cobra.Command {
	var (
		provider string
		cfg      = bench.DefaultConfig()
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run set-then-get cycles against one provider and report latencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			appCfg, logger, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), appCfg, logger)
			if err != nil {
				return fmt.Errorf("startup: %w", err)
			}
			defer a.close()

			kv, ok := a.manager(provider)
			if !ok {
				return fmt.Errorf("unknown provider %q (valid: direct, mobc, r2d2)", provider)
			}

			res, err := bench.NewRunner(provider, kv, cfg, logger).Run(cmd.Context())
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}

			fmt.Println(res)
			for stage, n := range res.ByStage {
				fmt.Printf("  %-20s %d\n", stage, n)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&provider, "provider", "p", "mobc", "Provider to benchmark (direct, mobc, r2d2)")
	cmd.Flags().IntVarP(&cfg.Concurrency, "concurrency", "c", cfg.Concurrency, "Parallel workers")
	cmd.Flags().IntVarP(&cfg.Requests, "requests", "n", cfg.Requests, "Total set-then-get cycles")
	cmd.Flags().IntVar(&cfg.KeySpace, "keys", cfg.KeySpace, "Distinct keys (0 = one per cycle)")
	cmd.Flags().IntVar(&cfg.ValueSize, "value-size", cfg.ValueSize, "Payload size in bytes")
	cmd.Flags().IntVar(&cfg.TTL, "ttl", cfg.TTL, "Key expiry in seconds")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}
