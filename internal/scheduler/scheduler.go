// Package scheduler drives the periodic scan loop: ingest, score, persist,
// outcome-check and notify for every watched symbol.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"marketvision/internal/ingest"
	"marketvision/internal/logging"
	"marketvision/internal/market"
	"marketvision/internal/signal"
)

const (
	defaultScanInterval = 300 * time.Second
	defaultStartupGrace = 30 * time.Second
	defaultScanDeadline = 90 * time.Second
	defaultSummaryHour  = 22
	candleFetchLimit    = 300
)

// Crypto trades around the clock on fast timeframes; everything else gets
// the slower intraday ladder.
var cryptoTimeframes = []market.Timeframe{market.TF15m, market.TF1h, market.TF1d}
var otherTimeframes = []market.Timeframe{market.TF5m, market.TF15m, market.TF30m, market.TF1d}

// Ingestor is the slice of the ingestion pipeline the scheduler needs.
type Ingestor interface {
	Ingest(ctx context.Context, symbol string, tf market.Timeframe, limit int, since *time.Time) (ingest.Result, error)
	LoadSeries(ctx context.Context, symbol string, tf market.Timeframe, limit int) (*market.Series, error)
}

// Scanner scores frames into signals.
type Scanner interface {
	ScanMultiTimeframe(frames map[market.Timeframe]*market.Series, lossPatterns []signal.LossPattern) ([]*signal.Signal, error)
}

// Notifier receives transition events. All methods are best-effort.
type Notifier interface {
	NotifySignal(sig *signal.Signal)
	NotifyOutcome(sig *signal.Signal)
	NotifySummary(a signal.Analytics)
	NotifyError(title, body string)
}

// Config controls the scan loop.
type Config struct {
	ScanInterval   time.Duration
	StartupGrace   time.Duration
	ScanDeadline   time.Duration
	SummaryHourUTC int
	WatchedSymbols []string
}

func (c *Config) applyDefaults() {
	if c.ScanInterval <= 0 {
		c.ScanInterval = defaultScanInterval
	}
	if c.StartupGrace < 0 {
		c.StartupGrace = defaultStartupGrace
	}
	if c.ScanDeadline <= 0 {
		c.ScanDeadline = defaultScanDeadline
	}
	if c.SummaryHourUTC <= 0 || c.SummaryHourUTC > 23 {
		c.SummaryHourUTC = defaultSummaryHour
	}
}

// Scheduler owns the periodic loop. Scans of distinct symbols run in
// parallel; a per-symbol mutex serializes scan and outcome checks for the
// same symbol.
type Scheduler struct {
	cfg      Config
	ingestor Ingestor
	scanner  Scanner
	store    signal.Store
	notifier Notifier
	cron     *cron.Cron
	log      zerolog.Logger

	mu          sync.Mutex
	symbolLocks map[string]*sync.Mutex
	cycle       atomic.Int64
	wg          sync.WaitGroup
}

// New creates a scheduler.
func New(cfg Config, ingestor Ingestor, scanner Scanner, store signal.Store, notifier Notifier) *Scheduler {
	cfg.applyDefaults()
	return &Scheduler{
		cfg:         cfg,
		ingestor:    ingestor,
		scanner:     scanner,
		store:       store,
		notifier:    notifier,
		cron:        cron.New(cron.WithLocation(time.UTC)),
		log:         logging.Component("scheduler"),
		symbolLocks: make(map[string]*sync.Mutex),
	}
}

// SetNotifier replaces the event sink. Must be called before Run.
func (s *Scheduler) SetNotifier(n Notifier) {
	s.notifier = n
}

// Run blocks until ctx is cancelled, then drains in-flight scans.
func (s *Scheduler) Run(ctx context.Context) error {
	spec := fmt.Sprintf("0 %d * * *", s.cfg.SummaryHourUTC)
	if _, err := s.cron.AddFunc(spec, func() { s.dailySummary(ctx) }); err != nil {
		return fmt.Errorf("scheduling daily summary: %w", err)
	}
	s.cron.Start()
	defer s.cron.Stop()

	s.log.Info().Dur("interval", s.cfg.ScanInterval).Int("symbols", len(s.cfg.WatchedSymbols)).
		Msg("scheduler starting")

	select {
	case <-time.After(s.cfg.StartupGrace):
	case <-ctx.Done():
		return ctx.Err()
	}

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	s.RunCycle(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunCycle(ctx)
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopping, draining scans")
			s.wg.Wait()
			return nil
		}
	}
}

// RunCycle kicks off one scan per due symbol. Forex pairs are scanned
// every other cycle to conserve provider quota.
func (s *Scheduler) RunCycle(ctx context.Context) {
	cycle := s.cycle.Add(1)
	for _, symbol := range s.cfg.WatchedSymbols {
		if !dueThisCycle(symbol, cycle) {
			continue
		}
		sym := symbol
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ScanSymbol(ctx, sym); err != nil {
				s.log.Error().Err(err).Str("symbol", sym).Msg("scan failed")
			}
		}()
	}
}

func dueThisCycle(symbol string, cycle int64) bool {
	if market.ClassifySymbol(symbol) == market.MarketForex {
		return cycle%2 == 1
	}
	return true
}

func timeframesFor(symbol string) []market.Timeframe {
	if market.ClassifySymbol(symbol) == market.MarketCrypto {
		return cryptoTimeframes
	}
	return otherTimeframes
}

// ScanSymbol runs the full ingest, score, persist, outcome-check sequence
// for one symbol under its lock and the scan deadline. A scan failure
// never kills the loop; partial state from successful steps is kept.
func (s *Scheduler) ScanSymbol(ctx context.Context, symbol string) error {
	lock := s.lockFor(symbol)
	lock.Lock()
	defer lock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ScanDeadline)
	defer cancel()

	symbol = market.CanonicalSymbol(symbol)
	log := s.log.With().Str("scan_id", uuid.NewString()).Str("symbol", symbol).Logger()

	frames := make(map[market.Timeframe]*market.Series)
	for _, tf := range timeframesFor(symbol) {
		if _, err := s.ingestor.Ingest(ctx, symbol, tf, candleFetchLimit, nil); err != nil {
			log.Warn().Err(err).Str("timeframe", string(tf)).Msg("ingest empty")
		}
		series, err := s.ingestor.LoadSeries(ctx, symbol, tf, candleFetchLimit)
		if err != nil {
			log.Warn().Err(err).Str("timeframe", string(tf)).Msg("load failed")
			continue
		}
		if !series.Empty() {
			frames[tf] = series
		}
	}
	if len(frames) == 0 {
		return fmt.Errorf("scan %s: no data on any timeframe", symbol)
	}

	history, err := s.store.List(ctx, signal.Filter{Symbol: symbol})
	if err != nil {
		return fmt.Errorf("scan %s: %w", symbol, err)
	}
	filters := signal.GetActiveLossFilters(history)

	signals, err := s.scanner.ScanMultiTimeframe(frames, filters)
	if err != nil {
		return fmt.Errorf("scan %s: %w", symbol, err)
	}
	for _, sig := range signals {
		if err := s.store.Save(ctx, sig); err != nil {
			return fmt.Errorf("saving signal for %s: %w", symbol, err)
		}
		if s.notifier != nil {
			s.notifier.NotifySignal(sig)
		}
	}
	log.Debug().Int("timeframes", len(frames)).Int("signals", len(signals)).Msg("scan complete")

	return s.checkOutcomes(ctx, symbol, frames)
}

// checkOutcomes advances every open signal of one symbol against the
// latest bar of its timeframe.
func (s *Scheduler) checkOutcomes(ctx context.Context, symbol string, frames map[market.Timeframe]*market.Series) error {
	open, err := s.store.List(ctx, signal.Filter{Symbol: symbol})
	if err != nil {
		return fmt.Errorf("outcome check %s: %w", symbol, err)
	}

	now := time.Now().UTC()
	for _, sig := range open {
		if sig.Status.Closed() {
			continue
		}
		series, ok := frames[sig.Timeframe]
		if !ok || series.Empty() {
			continue
		}
		if signal.CheckOutcome(sig, series.Last(), now) {
			if sig.Status == signal.StatusLoss {
				signal.AnalyzeLoss(sig)
			}
			if err := s.store.Update(ctx, sig); err != nil {
				return fmt.Errorf("updating signal %d: %w", sig.ID, err)
			}
			if s.notifier != nil {
				s.notifier.NotifyOutcome(sig)
			}
		}
	}
	return nil
}

// dailySummary emits per-symbol analytics once a day.
func (s *Scheduler) dailySummary(ctx context.Context) {
	s.log.Info().Msg("computing daily summary")
	for _, symbol := range s.cfg.WatchedSymbols {
		sigs, err := s.store.List(ctx, signal.Filter{Symbol: symbol})
		if err != nil {
			s.log.Warn().Err(err).Str("symbol", symbol).Msg("summary skipped")
			continue
		}
		if len(sigs) == 0 {
			continue
		}
		if s.notifier != nil {
			s.notifier.NotifySummary(signal.ComputeAnalytics(symbol, sigs))
		}
	}
}

func (s *Scheduler) lockFor(symbol string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.symbolLocks[symbol]
	if !ok {
		lock = &sync.Mutex{}
		s.symbolLocks[symbol] = lock
	}
	return lock
}
