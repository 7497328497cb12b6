package replay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"curveLedger/internal/errcode"
	"curveLedger/internal/model"
	"curveLedger/internal/storage"
)

// RunConfig holds runtime settings for a replay.
type RunConfig struct {
	BatchSize         uint64
	CheckpointPath    string
	CheckpointEnabled bool
	Retry             RetryPolicy
}

// Summary counts what a run did.
type Summary struct {
	Operations int
	Restored   int
	Applied    int
	Failed     int
	Events     int
}

// Runner applies operation records to a world in batches and writes the
// resulting events to storage.
type Runner struct {
	cfg        RunConfig
	world      *World
	storage    storage.Storage
	logger     *zap.Logger
	checkpoint *CheckpointStore
	eventSeq   uint64
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, world *World, sink storage.Storage, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		world:      world,
		storage:    sink,
		logger:     logger,
		checkpoint: NewCheckpointStore(cfg.CheckpointPath, cfg.CheckpointEnabled),
	}
}

// Run replays ops in order. Operations at or before the checkpoint are
// applied again to rebuild the in-memory state but their events are not
// written. Event sequence numbers continue from the checkpoint so that a
// resumed run writes the same numbering as an uninterrupted one.
func (r *Runner) Run(ctx context.Context, ops []model.OperationRecord) (Summary, error) {
	var sum Summary
	if r.world == nil {
		return sum, fmt.Errorf("world is nil")
	}
	if r.storage == nil {
		return sum, fmt.Errorf("storage is nil")
	}
	if r.cfg.BatchSize == 0 {
		return sum, fmt.Errorf("batch size must be greater than zero")
	}
	sum.Operations = len(ops)

	var lastSeq uint64
	for i, op := range ops {
		if op.Seq == 0 || (i > 0 && op.Seq <= lastSeq) {
			return sum, fmt.Errorf("operation %d: seq %d must be positive and increasing", i, op.Seq)
		}
		lastSeq = op.Seq
	}

	cp, resumed, err := r.checkpoint.Load()
	if err != nil {
		return sum, err
	}

	// Bootstrap events (asset registration) come first in the output.
	pending := r.world.Ledger.DrainEvents()
	start := 0
	if resumed {
		var restore Summary
		for start < len(ops) && ops[start].Seq <= cp.LastProcessedSeq {
			r.applyOne(ctx, ops[start], &restore)
			start++
		}
		r.world.Ledger.DrainEvents()
		pending = nil
		r.eventSeq = cp.EventSeq
		sum.Restored = start
		r.logger.Info("resume from checkpoint",
			zap.Uint64("last_processed", cp.LastProcessedSeq),
			zap.Int("restored", start),
		)
	}

	if start >= len(ops) {
		if len(pending) > 0 {
			if err := r.flush(ctx, pending, 0); err != nil {
				return sum, err
			}
			sum.Events += len(pending)
		}
		r.logger.Info("nothing to replay", zap.Int("operations", len(ops)))
		return sum, nil
	}

	ranges, err := SplitRange(uint64(start), uint64(len(ops)-1), r.cfg.BatchSize)
	if err != nil {
		return sum, err
	}
	for _, batch := range ranges {
		select {
		case <-ctx.Done():
			return sum, ctx.Err()
		default:
		}

		events := pending
		pending = nil
		for i := batch.From; i <= batch.To; i++ {
			events = append(events, r.applyOne(ctx, ops[i], &sum)...)
		}

		last := ops[batch.To].Seq
		if err := r.flush(ctx, events, last); err != nil {
			return sum, err
		}
		sum.Events += len(events)

		r.logger.Info("batch complete",
			zap.Int("events", len(events)),
			zap.Uint64("from_seq", ops[batch.From].Seq),
			zap.Uint64("to_seq", last),
		)
	}
	return sum, nil
}

// applyOne applies op and returns its events, or a single failure event.
func (r *Runner) applyOne(ctx context.Context, op model.OperationRecord, sum *Summary) []model.LedgerEvent {
	if err := r.world.Apply(ctx, op); err != nil {
		sum.Failed++
		r.logger.Debug("operation rejected",
			zap.Uint64("seq", op.Seq),
			zap.String("kind", op.Kind),
			zap.String("code", string(errcode.Of(err))),
			zap.Error(err),
		)
		return []model.LedgerEvent{r.world.failureEvent(op, err)}
	}
	sum.Applied++
	events := r.world.Ledger.DrainEvents()
	for i := range events {
		events[i].OpSeq = op.Seq
	}
	return events
}

// flush numbers events, writes them with retries and then advances the
// checkpoint to lastOpSeq.
func (r *Runner) flush(ctx context.Context, events []model.LedgerEvent, lastOpSeq uint64) error {
	seq := r.eventSeq
	for i := range events {
		seq++
		events[i].Seq = seq
	}
	err := withRetry(ctx, r.cfg.Retry, func(ctx context.Context) error {
		err := r.storage.PutEvents(ctx, events)
		if err != nil {
			r.logger.Warn("store events failed", zap.Error(err), zap.Int("events", len(events)))
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("store events: %w", err)
	}
	r.eventSeq = seq
	if lastOpSeq == 0 {
		return nil
	}
	return r.checkpoint.Save(lastOpSeq, seq)
}

// ReadOperations loads a JSONL file of operation records.
func ReadOperations(path string) ([]model.OperationRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open operations: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var ops []model.OperationRecord
	line := 0
	for scanner.Scan() {
		line++
		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 || data[0] == '#' {
			continue
		}
		var op model.OperationRecord
		if err := json.Unmarshal(data, &op); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if op.Seq == 0 {
			op.Seq = uint64(len(ops) + 1)
		}
		ops = append(ops, op)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan operations: %w", err)
	}
	return ops, nil
}
