package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"tradebot/internal/backtest"
	"tradebot/internal/engine"
	"tradebot/internal/events"
	"tradebot/internal/market"
	"tradebot/internal/notify"
	"tradebot/internal/order"
	"tradebot/internal/position"
	"tradebot/internal/risk"
	"tradebot/internal/strategy"
	"tradebot/pkg/cache"
	"tradebot/pkg/config"
	"tradebot/pkg/db"
	"tradebot/pkg/exchange/binance"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	root := &cobra.Command{
		Use:           "tradebot",
		Short:         "Automated crypto trading engine for Binance spot markets",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd(), newBacktestCmd())

	if err := root.Execute(); err != nil {
		log.Printf("tradebot: %v", err)
		os.Exit(1)
	}
}

// app bundles everything both commands need.
type app struct {
	cfg      *config.Config
	settings config.Settings
	store    *db.Store
	client   *binance.Client
}

func buildApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	settings, err := config.LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, nil, err
	}

	store, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	client := binance.New(binance.Config{
		APIKey:    cfg.BinanceAPIKey,
		APISecret: cfg.BinanceAPISecret,
		Testnet:   cfg.BinanceTestnet,
	})

	return &app{cfg: cfg, settings: settings, store: store, client: client},
		func() { store.Close() }, nil
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the live trading loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			// Live trading signs every order; refuse to start without keys
			// rather than failing on the first request.
			if err := a.cfg.RequireCredentials(); err != nil {
				return err
			}

			bus := events.NewBus()
			notifier := notify.NewLogNotifier()
			ledger := position.NewLedger(a.store, a.settings.Trading)

			prices := cache.NewPrices()
			marketData := market.NewCachedData(a.client, prices)
			feed := market.NewFeed(binance.NewStreamClient(a.cfg.BinanceTestnet), a.store, prices, a.settings)

			params := strategy.FromSettings(a.settings.Strategy, a.settings.Trading)
			strategies := strategy.NewService(marketData, a.store, params, a.settings.Trading.DefaultStrategy)
			riskMgr := risk.NewManager(a.client, marketData, ledger, notifier, bus, a.settings)
			executor := order.NewExecutor(a.client, marketData, a.store, ledger, notifier, bus, a.settings)

			eng := engine.New(strategies, riskMgr, executor, notifier, bus, a.settings)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.client.StartTimeSync(ctx)

			feed.Start(ctx)
			defer feed.Wait()
			return eng.Run(ctx)
		},
	}
}

func newBacktestCmd() *cobra.Command {
	var (
		symbol       string
		interval     string
		strategyName string
		limit        int
		start, end   string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Backtest a strategy over recent history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, cleanup, err := buildApp()
			if err != nil {
				return err
			}
			defer cleanup()

			params := strategy.FromSettings(a.settings.Strategy, a.settings.Trading)
			runner := backtest.NewRunner(a.client, a.settings.Trading)

			var perf backtest.Performance
			if start != "" || end != "" {
				from, to, err := parseRange(start, end)
				if err != nil {
					return err
				}
				perf, err = runner.RunRange(cmd.Context(), symbol, interval, strategyName, from, to, params)
				if err != nil {
					return err
				}
			} else {
				perf, err = runner.Run(cmd.Context(), symbol, interval, strategyName, limit, params)
				if err != nil {
					return err
				}
			}
			printPerformance(perf)
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "BTCUSDT", "trading pair to test")
	cmd.Flags().StringVar(&interval, "interval", "1h", "candle interval")
	cmd.Flags().StringVar(&strategyName, "strategy", "TripleConfirmation", "strategy name")
	cmd.Flags().IntVar(&limit, "candles", 500, "number of recent candles to replay")
	cmd.Flags().StringVar(&start, "start", "", "range start date (YYYY-MM-DD), overrides --candles")
	cmd.Flags().StringVar(&end, "end", "", "range end date (YYYY-MM-DD), defaults to now")
	return cmd
}

// parseRange reads the --start/--end dates. A missing end means now.
func parseRange(start, end string) (time.Time, time.Time, error) {
	from, err := time.Parse(time.DateOnly, start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse --start: %w", err)
	}
	to := time.Now()
	if end != "" {
		if to, err = time.Parse(time.DateOnly, end); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parse --end: %w", err)
		}
	}
	return from, to, nil
}

func printPerformance(p backtest.Performance) {
	fmt.Printf("Backtest %s (%s) with %s\n", p.Symbol, p.Interval, p.Strategy)
	fmt.Printf("  Period:        %s - %s\n", p.Start.Format("2006-01-02 15:04"), p.End.Format("2006-01-02 15:04"))
	fmt.Printf("  Trades:        %d (%d won / %d lost)\n", p.TotalTrades, p.WinningTrades, p.LosingTrades)
	fmt.Printf("  Total profit:  %.2f\n", p.TotalProfit)
	fmt.Printf("  Avg profit:    %.2f\n", p.AverageProfit)
	fmt.Printf("  Max drawdown:  %.2f%%\n", p.MaxDrawdown*100)
	fmt.Printf("  Profit factor: %.2f\n", p.ProfitFactor)
	fmt.Printf("  Sharpe ratio:  %.2f\n", p.SharpeRatio)
	for _, t := range p.Trades {
		fmt.Printf("    %s  entry %.4f -> exit %.4f  pnl %.4f  (%s)\n",
			t.ExitTime.Format("2006-01-02 15:04"), t.EntryPrice, t.ExitPrice, t.ProfitLoss, t.ExitReason)
	}
}
