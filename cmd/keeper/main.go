package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"order-keeper-go/alert"
	"order-keeper-go/config"
	"order-keeper-go/gateway"
	"order-keeper-go/infrastructure/logger"
	"order-keeper-go/market"
	"order-keeper-go/metrics"
	"order-keeper-go/order"
	"order-keeper-go/scan"
	"order-keeper-go/screen"
)

func main() {
	cfgPath := flag.String("config", "configs/keeper.yaml", "config file path")
	parse := flag.Bool("parse", false, "scan the instrument universe and snapshot valuations")
	loadPath := flag.String("load", "", "load valuations from a snapshot file instead of scanning")
	update := flag.Bool("update", false, "run the order maintenance loop")
	scanLimit := flag.Int("limit", 0, "max instruments to scan (0 = all)")
	maxPrice := flag.Float64("maxPrice", 0, "override screen.maxPriceUSD")
	minRatio := flag.Float64("minRatio", -1, "override screen.minIncomeRatio")
	changed := flag.Bool("changed", false, "only admit instruments that traded today")
	metricsAddr := flag.String("metricsAddr", "", "override keeper.metricsAddr (empty keeps config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if *maxPrice > 0 {
		cfg.Screen.MaxPriceUSD = *maxPrice
	}
	if *minRatio >= 0 {
		cfg.Screen.MinIncomeRatio = *minRatio
	}
	if *changed {
		cfg.Screen.RequireChangedToday = true
	}
	if *metricsAddr != "" {
		cfg.Keeper.MetricsAddr = *metricsAddr
	}

	zlog, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer zlog.Sync()

	mets := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Keeper.MetricsAddr != "" {
		metrics.Serve(cfg.Keeper.MetricsAddr)
	}

	client := &gateway.Client{
		BaseURL:    cfg.Gateway.BaseURL,
		Token:      cfg.Gateway.Token,
		HTTPClient: gateway.NewDefaultHTTPClient(),
		Limiter:    gateway.NewTokenBucketLimiter(cfg.Gateway.RestRate, cfg.Gateway.RestBurst),
	}
	guard := gateway.NewGuard(cfg.ThrottleCooldown(), zlog)
	guard.OnThrottle = mets.IncThrottleWaits

	valuations := &guardedValuations{
		builder: market.Builder{Source: client},
		guard:   guard,
	}
	broker := &brokerGateway{client: client, guard: guard}
	trades := &tradeSource{client: client, guard: guard}

	screener := screen.New(screen.Criteria{
		USDToRUB:       cfg.Screen.USDToRUB,
		MaxPriceUSD:    cfg.Screen.MaxPriceUSD,
		MinIncomeRatio: cfg.Screen.MinIncomeRatio,
		RequireChanged: cfg.Screen.RequireChangedToday,
	}, zlog)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *parse || *loadPath != "" {
		vals, err := candidateValuations(cfg, client, guard, zlog, *parse, *loadPath, *scanLimit)
		if err != nil {
			zlog.Fatal("candidate scan failed", zap.Error(err))
		}
		placer := &order.Placer{
			Gateway:  broker,
			Screener: screener,
			Decider:  consoleDecider{in: bufio.NewReader(os.Stdin), out: os.Stdout},
			Lots:     cfg.Keeper.Lots,
			Log:      zlog,
			Metrics:  mets,
		}
		if err := placer.PlaceEligible(vals); err != nil {
			zlog.Fatal("placement batch failed", zap.Error(err))
		}
	}

	if !*update {
		return
	}

	alerts := alert.NewManager([]alert.Channel{
		alert.LogChannel{Log: zlog},
		alert.BellChannel{Out: os.Stdout},
	}, 0, zlog)

	g, ctx := errgroup.WithContext(ctx)

	// With a streaming endpoint configured, reconciliation reads books from
	// the stream cache and only falls back to REST on a cache miss.
	var valSource order.ValuationSource = valuations
	if cfg.Gateway.StreamURL != "" {
		stream := gateway.NewQuoteStream(cfg.Gateway.StreamURL, cfg.Gateway.Token, zlog)
		g.Go(func() error {
			for {
				err := stream.Run(ctx)
				if ctx.Err() != nil {
					return ctx.Err()
				}
				zlog.Warn("quote stream disconnected, retrying", zap.Error(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Second):
				}
			}
		})
		valSource = &streamValuations{
			stream:   stream,
			fallback: valuations,
			client:   client,
			guard:    guard,
		}
	}

	reconciler := order.NewReconciler(broker, valSource, cfg.Screen.MinIncomeRatio, zlog)
	reconciler.Metrics = mets
	responder := &order.Responder{
		Trades:     trades,
		Gateway:    broker,
		Valuations: valSource,
		Dedup:      order.NewDedup(time.Duration(cfg.Keeper.DedupTTLHours)*time.Hour, nil),
		Alerts:     alerts,
		Lots:       cfg.Keeper.Lots,
		Log:        zlog,
		Metrics:    mets,
	}
	keeper := &order.Keeper{
		Reconciler: reconciler,
		Responder:  responder,
		Interval:   cfg.ReconcileInterval(),
		Log:        zlog,
		AfterCycle: func() {
			_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
		},
	}

	g.Go(func() error { return keeper.Run(ctx) })
	g.Go(func() error {
		w := config.Watcher{Path: *cfgPath, Log: zlog}
		return w.Run(ctx, func(fresh config.AppConfig) {
			reconciler.SetMinRatio(fresh.Screen.MinIncomeRatio)
		})
	})

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	zlog.Info("keeper running",
		zap.Duration("interval", cfg.ReconcileInterval()),
		zap.Float64("minIncomeRatio", cfg.Screen.MinIncomeRatio))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		zlog.Fatal("keeper stopped", zap.Error(err))
	}
}

// candidateValuations either scans the live universe or loads a snapshot.
func candidateValuations(cfg config.AppConfig, client *gateway.Client, guard *gateway.Guard, zlog *zap.Logger, parse bool, loadPath string, limit int) ([]market.Valuation, error) {
	if !parse {
		return scan.LoadSnapshot(loadPath)
	}
	scanner := &scan.Scanner{Universe: client, Books: client, Guard: guard, Log: zlog}
	vals, err := scanner.ScanAll(limit)
	if err != nil {
		return nil, err
	}
	if cfg.Snapshot.Path != "" {
		if err := scan.SaveSnapshot(cfg.Snapshot.Path, vals); err != nil {
			zlog.Warn("snapshot save failed", zap.Error(err))
		}
	}
	if cfg.Snapshot.ReportPath != "" {
		f, err := os.Create(cfg.Snapshot.ReportPath)
		if err != nil {
			zlog.Warn("report open failed", zap.Error(err))
		} else {
			defer f.Close()
			if err := scan.WriteReport(f, vals); err != nil {
				zlog.Warn("report write failed", zap.Error(err))
			}
		}
	}
	return vals, nil
}

// brokerGateway adapts the REST client to the order.Gateway contract, riding
// throttling out through the guard and tagging each placement attempt with a
// fresh idempotency key.
type brokerGateway struct {
	client *gateway.Client
	guard  *gateway.Guard
}

func (g *brokerGateway) OpenOrders() ([]order.Order, error) {
	var raw []gateway.OpenOrder
	err := g.guard.Do("open orders", func() error {
		var err error
		raw, err = g.client.OpenOrders()
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]order.Order, 0, len(raw))
	for _, o := range raw {
		out = append(out, order.Order{
			ID:     o.OrderID,
			FIGI:   o.FIGI,
			Side:   order.Side(o.Operation),
			Price:  o.Price,
			Lots:   o.RequestedLots,
			Status: o.Status,
		})
	}
	return out, nil
}

func (g *brokerGateway) PlaceLimit(figi string, side order.Side, lots int, price float64) (string, error) {
	var id string
	clientID := uuid.NewString()
	err := g.guard.Do("place limit", func() error {
		var err error
		id, err = g.client.PlaceLimitOrder(figi, string(side), lots, price, clientID)
		return err
	})
	return id, err
}

func (g *brokerGateway) Cancel(orderID string) error {
	return g.guard.Do("cancel", func() error {
		return g.client.CancelOrder(orderID)
	})
}

// tradeSource adapts operation history to order.TradeSource.
type tradeSource struct {
	client *gateway.Client
	guard  *gateway.Guard
}

func (t *tradeSource) Trades(from, to time.Time) ([]order.Trade, error) {
	var raw []gateway.Operation
	err := t.guard.Do("operations", func() error {
		var err error
		raw, err = t.client.Operations(from, to)
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make([]order.Trade, 0, len(raw))
	for _, op := range raw {
		out = append(out, order.Trade{
			ID:     op.ID,
			FIGI:   op.FIGI,
			Side:   order.Side(op.OperationType),
			Status: order.TradeStatus(op.Status),
			Time:   op.Date,
		})
	}
	return out, nil
}

// streamValuations serves books from the streaming cache, lazily subscribing
// each instrument on first use and falling back to REST until the stream has
// produced an event for it.
type streamValuations struct {
	stream   *gateway.QuoteStream
	fallback *guardedValuations
	client   *gateway.Client
	guard    *gateway.Guard
}

func (v *streamValuations) ByFIGI(figi string) (market.Valuation, error) {
	_ = v.stream.Subscribe(figi)
	ob, ok := v.stream.Latest(figi)
	if !ok {
		return v.fallback.ByFIGI(figi)
	}
	var inst gateway.Instrument
	err := v.guard.Do("instrument", func() error {
		var err error
		inst, err = v.client.InstrumentByFIGI(figi)
		return err
	})
	if err != nil {
		return market.Valuation{}, err
	}
	return market.FromOrderbook(inst, ob)
}

// guardedValuations rebuilds valuations through the rate-limit guard.
type guardedValuations struct {
	builder market.Builder
	guard   *gateway.Guard
}

func (v *guardedValuations) ByFIGI(figi string) (market.Valuation, error) {
	var out market.Valuation
	err := v.guard.Do("valuation", func() error {
		var err error
		out, err = v.builder.ByFIGI(figi)
		return err
	})
	return out, err
}

// consoleDecider is the interactive confirmation prompt: y confirms, exit
// aborts the batch, anything else rejects the candidate.
type consoleDecider struct {
	in  *bufio.Reader
	out *os.File
}

func (d consoleDecider) Decide(v market.Valuation, price float64) order.Decision {
	fmt.Fprintf(d.out, "buy %s at %.2f? y/n or exit: ", v.String(), price)
	line, err := d.in.ReadString('\n')
	if err != nil {
		return order.Abort
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return order.Confirm
	case "exit":
		return order.Abort
	default:
		return order.Reject
	}
}
