// Command fuzzer runs the coverage-guided comparison fuzzer: it drives a
// target binary through repeated mutation and execution while tracking
// block, edge, and path coverage, but steers exploration on only the
// configured feedback metrics (§1, §2, §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fEst1ck/coverage-playground/internal/config"
	"github.com/fEst1ck/coverage-playground/internal/dashboard"
	"github.com/fEst1ck/coverage-playground/internal/engine"
	"github.com/fEst1ck/coverage-playground/pkg/types"
)

var (
	version = "0.1.0-dev"

	seedDir     string
	outputDir   string
	configFile  string
	tracked     []string
	feedback    []string
	timeoutSecs int
	statsSecs   int
	tuiMode     bool
	webAddr     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fuzzer -- <target> [args...]",
		Short: "Coverage-guided fuzzer comparing block/edge/path coverage metrics",
		Long: `fuzzer mutates a seed corpus against an instrumented target binary,
tracking block, edge, and path coverage in parallel while admitting new
corpus entries based on only the configured subset of them (the feedback
metrics).
It exists to measure how the tracked-but-unused metrics would have behaved
under the same mutation trace, for offline comparison.`,
		Args: cobra.ArbitraryArgs,
		RunE: runFuzzer,
	}

	rootCmd.Flags().StringVar(&seedDir, "seed-dir", "", "directory of initial seed files (required)")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "", "directory for queue/, crashes/, stats/ (required)")
	rootCmd.Flags().StringVarP(&configFile, "config", "c", "", "optional YAML config file overlaid on defaults")
	rootCmd.Flags().StringSliceVar(&tracked, "tracked-metrics", nil, "metrics to track: block,edge,path (default: all three)")
	rootCmd.Flags().StringSliceVar(&feedback, "feedback-metrics", nil, "metrics that drive corpus admission (default: edge)")
	rootCmd.Flags().IntVar(&timeoutSecs, "timeout", 0, "per-execution timeout in seconds (default: 2)")
	rootCmd.Flags().IntVar(&statsSecs, "stats-period", 0, "seconds between stats snapshots (default: 30)")
	rootCmd.Flags().BoolVar(&tuiMode, "tui", false, "show a live terminal dashboard")
	rootCmd.Flags().StringVar(&webAddr, "web", "", "serve a live web dashboard at this address, e.g. :9090")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("fuzzer version %s\n", version)
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func parseMetrics(names []string) []types.Metric {
	out := make([]types.Metric, 0, len(names))
	for _, n := range names {
		out = append(out, types.Metric(strings.ToLower(strings.TrimSpace(n))))
	}
	return out
}

func runFuzzer(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("no target command given; invoke as: fuzzer [flags] -- <target> [args...]")
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}
	cfg.SeedDir = seedDir
	cfg.OutputDir = outputDir
	cfg.TargetCmd = args
	if len(tracked) > 0 {
		cfg.TrackedMetrics = parseMetrics(tracked)
	}
	if len(feedback) > 0 {
		cfg.FeedbackMetrics = parseMetrics(feedback)
	}
	if timeoutSecs > 0 {
		cfg.Timeout = time.Duration(timeoutSecs) * time.Second
	}
	if statsSecs > 0 {
		cfg.StatsPeriod = time.Duration(statsSecs) * time.Second
	}
	cfg.Delivery = config.DetectDelivery(cfg.TargetCmd)

	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("fuzzer: creating output dir: %w", err)
	}

	e, err := engine.New(cfg, nil)
	if err != nil {
		return err
	}

	if err := writeCommandFile(cfg.OutputDir, e.RunID(), cfg.TargetCmd); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to write command.txt: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\n[*] shutting down gracefully, killing in-flight execution...")
		cancel()
	}()

	if webAddr != "" {
		srv := dashboard.NewServer(e.RunID(), e.Counters(), e.StatsSource())
		go func() {
			if err := srv.Start(webAddr); err != nil {
				fmt.Fprintf(os.Stderr, "web dashboard error: %v\n", err)
			}
		}()
		defer srv.Stop()
		fmt.Fprintf(os.Stderr, "[*] web dashboard listening at http://localhost%s\n", webAddr)
	}

	if tuiMode {
		model := dashboard.NewModel(e.RunID(), e.Counters(), e.StatsSource())
		go func() {
			if err := dashboard.Run(model); err != nil {
				fmt.Fprintf(os.Stderr, "tui error: %v\n", err)
			}
			cancel()
		}()
	}

	return e.Run(ctx)
}

func writeCommandFile(outputDir, runID string, targetCmd []string) error {
	path := outputDir + "/command.txt"
	content := fmt.Sprintf("run_id: %s\nstarted_at: %s\ncommand: %s\n",
		runID, time.Now().Format(time.RFC3339), strings.Join(targetCmd, " "))
	return os.WriteFile(path, []byte(content), 0o644)
}
