package aggregate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"curveLedger/internal/model"
)

// Config controls aggregation behavior.
type Config struct {
	WindowSeconds uint64
	BatchSize     int
	RecomputeFrom uint64
	// Decimals scales every amount written to the metrics rows.
	Decimals   uint8
	StateStore StateStore
}

// MetricsStore receives finished window rows.
type MetricsStore interface {
	UpsertAssetWindowMetrics(ctx context.Context, metrics []model.AssetWindowMetrics) error
}

type metricsFanout []MetricsStore

// Stores sends every batch to each non-nil store and joins their errors.
func Stores(stores ...MetricsStore) MetricsStore {
	out := make(metricsFanout, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func (f metricsFanout) UpsertAssetWindowMetrics(ctx context.Context, metrics []model.AssetWindowMetrics) error {
	var errs []error
	for _, s := range f {
		if err := s.UpsertAssetWindowMetrics(ctx, metrics); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Aggregator rolls ledger events into per-asset window metrics.
type Aggregator struct {
	cfg          Config
	store        MetricsStore
	logger       *zap.Logger
	accumulators map[string]*Accumulator
}

func NewAggregator(cfg Config, store MetricsStore, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		accumulators: make(map[string]*Accumulator),
	}
}

// Run aggregates a ledger events JSONL file. Windows still open when the
// state is saved are recomputed in full on the next run.
func (a *Aggregator) Run(ctx context.Context, inputPath string) error {
	if a.store == nil {
		return fmt.Errorf("store is nil")
	}
	if a.cfg.WindowSeconds == 0 {
		return fmt.Errorf("window seconds must be > 0")
	}
	if a.cfg.BatchSize <= 0 {
		a.cfg.BatchSize = 1000
	}

	startTs, err := a.loadStartTimestamp(ctx)
	if err != nil {
		return err
	}

	file, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	batch := make([]model.AssetWindowMetrics, 0, a.cfg.BatchSize)
	maxTs := startTs
	var total, applied, skipped, failed, windows int

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		total++

		var event model.LedgerEvent
		if err := json.Unmarshal(line, &event); err != nil {
			failed++
			a.logger.Warn("decode ledger event", zap.Error(err))
			continue
		}
		if event.Timestamp < 0 || uint64(event.Timestamp) <= startTs || event.Asset == "" {
			skipped++
			continue
		}
		ts := uint64(event.Timestamp)

		start := windowStart(ts, a.cfg.WindowSeconds)
		key := assetKey(event.Asset)
		acc := a.accumulators[key]
		if acc != nil && acc.WindowStart != start {
			batch = append(batch, a.metricsOf(acc))
			windows++
			acc = nil
		}
		if acc == nil {
			acc = NewAccumulator(event.Asset, start, start+a.cfg.WindowSeconds)
			a.accumulators[key] = acc
		}

		if err := acc.AddEvent(event); err != nil {
			failed++
			a.logger.Warn("aggregate event", zap.Error(err), zap.Uint64("seq", event.Seq), zap.String("op", event.Op))
			continue
		}
		applied++
		if ts > maxTs {
			maxTs = ts
		}

		if len(batch) >= a.cfg.BatchSize {
			if err := a.store.UpsertAssetWindowMetrics(ctx, batch); err != nil {
				return err
			}
			batch = batch[:0]
			if err := a.saveState(ctx, maxTs); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan input: %w", err)
	}

	// Open windows are written but the state stays before them, so events
	// appended to the same windows later are not lost.
	resumeTs := a.safeTimestamp(maxTs)
	for _, key := range sortedKeys(a.accumulators) {
		batch = append(batch, a.metricsOf(a.accumulators[key]))
		windows++
	}
	a.accumulators = make(map[string]*Accumulator)

	if len(batch) > 0 {
		if err := a.store.UpsertAssetWindowMetrics(ctx, batch); err != nil {
			return err
		}
	}
	if a.cfg.StateStore != nil {
		if err := a.cfg.StateStore.Save(ctx, resumeTs); err != nil {
			return err
		}
	}

	a.logger.Info("aggregate complete",
		zap.Int("total", total),
		zap.Int("applied", applied),
		zap.Int("skipped", skipped),
		zap.Int("failed", failed),
		zap.Int("windows", windows),
	)
	return nil
}

func (a *Aggregator) loadStartTimestamp(ctx context.Context) (uint64, error) {
	if a.cfg.RecomputeFrom > 0 {
		return a.cfg.RecomputeFrom - 1, nil
	}
	if a.cfg.StateStore == nil {
		return 0, nil
	}
	last, ok, err := a.cfg.StateStore.Load(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return last, nil
}

// safeTimestamp is the last timestamp before every open window, or maxTs
// when none is open.
func (a *Aggregator) safeTimestamp(maxTs uint64) uint64 {
	if len(a.accumulators) == 0 {
		return maxTs
	}
	if start := minOpenWindowStart(a.accumulators); start > 0 {
		return start - 1
	}
	return 0
}

func (a *Aggregator) saveState(ctx context.Context, maxTs uint64) error {
	if a.cfg.StateStore == nil {
		return nil
	}
	return a.cfg.StateStore.Save(ctx, a.safeTimestamp(maxTs))
}

func (a *Aggregator) metricsOf(acc *Accumulator) model.AssetWindowMetrics {
	counts := make(map[string]uint64, len(acc.OpCounts))
	for op, n := range acc.OpCounts {
		counts[op] = n
	}
	dec := a.cfg.Decimals
	return model.AssetWindowMetrics{
		Asset:              acc.Asset,
		WindowSizeSecs:     int64(a.cfg.WindowSeconds),
		WindowStart:        time.Unix(int64(acc.WindowStart), 0).UTC(),
		WindowEnd:          time.Unix(int64(acc.WindowEnd), 0).UTC(),
		OpCounts:           counts,
		FailedCount:        acc.FailedCount,
		Minted:             formatTokenAmount(acc.Minted, dec),
		Burned:             formatTokenAmount(acc.Burned, dec),
		Fees:               formatTokenAmount(acc.Fees, dec),
		CollateralLocked:   formatTokenAmount(acc.CollateralLocked, dec),
		CollateralReleased: formatTokenAmount(acc.CollateralReleased, dec),
		NetCollateral:      formatTokenAmount(acc.NetCollateral(), dec),
		FeeRatio:           computeRate(acc.Fees, acc.Minted),
	}
}

func windowStart(ts uint64, windowSec uint64) uint64 {
	return ts - (ts % windowSec)
}

func assetKey(address string) string {
	return strings.ToLower(address)
}

func sortedKeys(acc map[string]*Accumulator) []string {
	keys := make([]string, 0, len(acc))
	for k := range acc {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func minOpenWindowStart(acc map[string]*Accumulator) uint64 {
	var min uint64
	first := true
	for _, entry := range acc {
		if entry == nil {
			continue
		}
		if first || entry.WindowStart < min {
			min = entry.WindowStart
			first = false
		}
	}
	return min
}
