package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/vietddude/custodian"
	"github.com/vietddude/custodian/budget"
	"github.com/vietddude/custodian/config"
	"github.com/vietddude/custodian/resilience"
	"github.com/vietddude/stylelog"
)

func main() {
	// Parse flags
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	tenant := flag.String("tenant", "", "Override the configured tenant")
	isDebug := flag.Bool("debug", false, "Enable debug logging")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	// Load Configuration first (before setting up logger)
	cfg, err := config.Load(*configPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if *isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}
	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})

	if *tenant != "" {
		cfg.API.Tenant = *tenant
	}

	client, err := newClient(cfg)
	if err != nil {
		slog.Error("Failed to initialize client", "error", err)
		os.Exit(1)
	}

	// Cancel in-flight calls on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, flag.Arg(0), flag.Args()[1:]); err != nil {
		slog.Error("Command failed", "command", flag.Arg(0), "error", err)
		os.Exit(1)
	}
}

// newClient wires budget tracking and resilience policies from config.
func newClient(cfg *config.AppConfig) (*custodian.Client, error) {
	var tracker budget.Tracker
	if cfg.Budget.Redis.URL != "" {
		rdb, err := budget.DialRedis(cfg.Budget.Redis.URL, cfg.Budget.Redis.Password)
		if err != nil {
			return nil, err
		}
		tracker = budget.NewRedisTracker(rdb, cfg.Budget.DailyQuota)
	} else if cfg.Budget.DailyQuota > 0 {
		tracker = budget.NewMemoryTracker(cfg.Budget.DailyQuota)
	}

	var limiter *budget.Limiter
	if cfg.Budget.RPS > 0 {
		limiter = budget.NewLimiter(cfg.Budget.RPS, cfg.Budget.Burst)
	}

	return custodian.New(custodian.Config{
		BaseURL: cfg.API.BaseURL,
		APIKey:  cfg.API.Key,
		Tenant:  cfg.API.Tenant,
		Timeout: cfg.API.Timeout,
		Retry:   cfg.Retry.Policy(),
		Breaker: cfg.Breaker.Policy(),
		Budget:  tracker,
		Limiter: limiter,
	})
}

func run(ctx context.Context, client *custodian.Client, command string, args []string) error {
	switch command {
	case "ping":
		return runPing(ctx, client)
	case "wallets":
		return runWallets(ctx, client, args)
	case "transfers":
		return runTransfers(ctx, client, args)
	case "events":
		return runEvents(ctx, client, args)
	case "status":
		return runStatus(ctx, client)
	default:
		usage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func runPing(ctx context.Context, client *custodian.Client) error {
	start := time.Now()
	if err := client.Ping(ctx); err != nil {
		return err
	}
	fmt.Printf("✅ API reachable (%v)\n", time.Since(start).Round(time.Millisecond))
	return nil
}

func runWallets(ctx context.Context, client *custodian.Client, args []string) error {
	fs := flag.NewFlagSet("wallets", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Page size")
	all := fs.Bool("all", false, "Fetch every page")
	fs.Parse(args)

	if fs.NArg() > 0 {
		w, err := client.GetWallet(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Printf("ID:       %s\n", w.ID)
		fmt.Printf("Name:     %s\n", w.Name)
		fmt.Printf("Asset:    %s\n", w.Asset)
		fmt.Printf("Address:  %s\n", w.Address)
		fmt.Printf("Balance:  %s\n", w.Balance)
		fmt.Printf("Status:   %s\n", w.Status)
		fmt.Printf("Created:  %s\n", w.CreatedAt.Format(time.RFC3339))
		return nil
	}

	fmt.Printf("%-16s %-8s %-10s %16s  %s\n", "ID", "ASSET", "STATUS", "BALANCE", "NAME")
	cursor := ""
	for {
		page, err := client.ListWallets(ctx, &custodian.ListOptions{Limit: *limit, Cursor: cursor})
		if err != nil {
			return err
		}
		for _, w := range page.Data {
			fmt.Printf("%-16s %-8s %-10s %16s  %s\n", w.ID, w.Asset, w.Status, w.Balance, w.Name)
		}
		if !*all || page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func runTransfers(ctx context.Context, client *custodian.Client, args []string) error {
	fs := flag.NewFlagSet("transfers", flag.ExitOnError)
	wallet := fs.String("wallet", "", "Filter by wallet ID")
	status := fs.String("status", "", "Filter by status")
	limit := fs.Int("limit", 20, "Page size")
	all := fs.Bool("all", false, "Fetch every page")
	fs.Parse(args)

	if fs.NArg() > 0 {
		tr, err := client.GetTransfer(ctx, fs.Arg(0))
		if err != nil {
			return err
		}
		fmt.Printf("ID:           %s\n", tr.ID)
		fmt.Printf("Wallet:       %s\n", tr.WalletID)
		fmt.Printf("Asset:        %s\n", tr.Asset)
		fmt.Printf("Amount:       %s\n", tr.Amount)
		fmt.Printf("Destination:  %s\n", tr.Destination)
		fmt.Printf("Status:       %s\n", tr.Status)
		if tr.TxHash != "" {
			fmt.Printf("Tx Hash:      %s\n", tr.TxHash)
		}
		fmt.Printf("Created:      %s\n", tr.CreatedAt.Format(time.RFC3339))
		return nil
	}

	fmt.Printf("%-16s %-16s %-8s %14s %-10s  %s\n", "ID", "WALLET", "ASSET", "AMOUNT", "STATUS", "DESTINATION")
	cursor := ""
	for {
		page, err := client.ListTransfers(ctx, &custodian.TransferListOptions{
			ListOptions: custodian.ListOptions{Limit: *limit, Cursor: cursor},
			WalletID:    *wallet,
			Status:      custodian.TransferStatus(*status),
		})
		if err != nil {
			return err
		}
		for _, tr := range page.Data {
			fmt.Printf("%-16s %-16s %-8s %14s %-10s  %s\n",
				tr.ID, tr.WalletID, tr.Asset, tr.Amount, tr.Status, tr.Destination)
		}
		if !*all || page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func runEvents(ctx context.Context, client *custodian.Client, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	eventType := fs.String("type", "", "Filter by event type")
	limit := fs.Int("limit", 20, "Page size")
	all := fs.Bool("all", false, "Fetch every page")
	fs.Parse(args)

	fmt.Printf("%-25s %-24s %-16s %s\n", "TIME", "TYPE", "RESOURCE", "ID")
	cursor := ""
	for {
		page, err := client.ListEvents(ctx, &custodian.EventListOptions{
			ListOptions: custodian.ListOptions{Limit: *limit, Cursor: cursor},
			Type:        *eventType,
		})
		if err != nil {
			return err
		}
		for _, ev := range page.Data {
			fmt.Printf("%-25s %-24s %-16s %s\n",
				ev.CreatedAt.Format(time.RFC3339), ev.Type, ev.ResourceID, ev.ID)
		}
		if !*all || page.NextCursor == "" {
			return nil
		}
		cursor = page.NextCursor
	}
}

func runStatus(ctx context.Context, client *custodian.Client) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n=== Custodian Client Status (Tenant: %s) ===\n\n", client.Tenant()))

	stats := client.BreakerStats()
	stateStr := map[resilience.State]string{
		resilience.StateClosed:   "✅ CLOSED",
		resilience.StateOpen:     "🔴 OPEN",
		resilience.StateHalfOpen: "⚠️  HALF-OPEN",
	}[stats.State]

	sb.WriteString(fmt.Sprintf("Circuit: %s\n", stats.Name))
	sb.WriteString(fmt.Sprintf("  State: %s\n", stateStr))
	sb.WriteString(fmt.Sprintf("  Failures: %d\n", stats.FailureCount))
	sb.WriteString(fmt.Sprintf("  Successes: %d\n", stats.SuccessCount))
	sb.WriteString(fmt.Sprintf("  Rejections: %d\n", stats.Rejections))
	if !stats.LastFailureTime.IsZero() {
		sb.WriteString(fmt.Sprintf("  Last Failure: %s\n", stats.LastFailureTime.Format(time.RFC3339)))
	}
	if n := len(stats.Transitions); n > 0 {
		sb.WriteString("  Recent Transitions:\n")
		if n > 5 {
			stats.Transitions = stats.Transitions[n-5:]
		}
		for _, tr := range stats.Transitions {
			sb.WriteString(fmt.Sprintf("    %s -> %s\n", tr.At.Format("15:04:05"), tr.To))
		}
	}

	used := client.Usage(ctx)
	sb.WriteString("\nBudget Status:\n")
	if used.DailyQuota > 0 {
		sb.WriteString(fmt.Sprintf("  Quota: %d/%d (%.1f%%)\n",
			used.TotalCalls, used.DailyQuota, used.UsagePercentage))
		sb.WriteString(fmt.Sprintf("  Resets at: %s\n", used.NextResetAt.Format("15:04:05")))
	} else {
		sb.WriteString("  Quota: unlimited\n")
	}

	fmt.Print(sb.String())
	return nil
}

func usage() {
	fmt.Fprintf(os.Stderr, `custodianctl - Custodian API command line client

Usage:
  custodianctl [flags] <command> [args]

Commands:
  ping              Check API connectivity
  wallets [id]      List wallets or show one wallet
  transfers [id]    List transfers or show one transfer
  events            List audit events
  status            Show circuit breaker and budget state

Flags:
`)
	flag.PrintDefaults()
}
