package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"curveLedger/internal/model"
)

type metricsKey struct {
	asset  string
	window int64
	start  int64
}

func keyOf(m model.AssetWindowMetrics) metricsKey {
	return metricsKey{asset: m.Asset, window: m.WindowSizeSecs, start: m.WindowStart.Unix()}
}

// JsonlMetricsStore keeps asset window metrics in a JSONL file, one line per
// (asset, window size, window start). A recomputed window replaces its line.
type JsonlMetricsStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	rows   map[metricsKey]model.AssetWindowMetrics
}

func NewJsonlMetricsStore(path string) *JsonlMetricsStore {
	return &JsonlMetricsStore{path: path}
}

func (s *JsonlMetricsStore) Path() string { return s.path }

// UpsertAssetWindowMetrics merges the batch into the file and rewrites it
// sorted by asset, window size and window start.
func (s *JsonlMetricsStore) UpsertAssetWindowMetrics(_ context.Context, metrics []model.AssetWindowMetrics) error {
	if len(metrics) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		rows, err := readMetrics(s.path)
		if err != nil {
			return err
		}
		s.rows = rows
		s.loaded = true
	}
	for _, m := range metrics {
		s.rows[keyOf(m)] = m
	}

	out := make([]model.AssetWindowMetrics, 0, len(s.rows))
	for _, m := range s.rows {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := keyOf(out[i]), keyOf(out[j])
		if a.asset != b.asset {
			return a.asset < b.asset
		}
		if a.window != b.window {
			return a.window < b.window
		}
		return a.start < b.start
	})

	tmp := s.path + ".tmp"
	if err := WriteJSONL(tmp, out); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(tmp), err)
	}
	return nil
}

func readMetrics(path string) (map[metricsKey]model.AssetWindowMetrics, error) {
	rows := make(map[metricsKey]model.AssetWindowMetrics)
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return rows, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open metrics: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var m model.AssetWindowMetrics
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			return nil, fmt.Errorf("metrics line %d: %w", line, err)
		}
		m.WindowStart = m.WindowStart.In(time.UTC)
		m.WindowEnd = m.WindowEnd.In(time.UTC)
		rows[keyOf(m)] = m
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read metrics: %w", err)
	}
	return rows, nil
}
