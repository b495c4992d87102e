package worker

import (
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/battlelab/matchup/internal/features"
	"github.com/battlelab/matchup/internal/models"
)

// DefaultExamplesTable is the ClickHouse table labeled rows land in.
const DefaultExamplesTable = "matchup.labeled_examples"

// ClickHouseSink batch-inserts examples, one INSERT per flushed batch.
type ClickHouseSink struct {
	conn  driver.Conn
	table string
	now   func() time.Time
}

func NewClickHouseSink(conn driver.Conn, table string) *ClickHouseSink {
	if table == "" {
		table = DefaultExamplesTable
	}
	return &ClickHouseSink{conn: conn, table: table, now: time.Now}
}

// EnsureTable creates the examples table if it is missing.
func (s *ClickHouseSink) EnsureTable(ctx context.Context) error {
	return s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			run_id String,
			shard UInt16,
			pair_index UInt64,
			combatant_a String,
			combatant_b String,
			move_a Int32,
			move_b Int32,
			schema_version LowCardinality(String),
			features Array(Float64),
			label UInt8,
			turns UInt16,
			turn_cap UInt8,
			created_at DateTime64(3)
		) ENGINE = MergeTree
		ORDER BY (run_id, pair_index)
	`, s.table))
}

func (s *ClickHouseSink) Write(ctx context.Context, shard int, batch []models.Example) error {
	if len(batch) == 0 {
		return nil
	}

	chBatch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(`
		INSERT INTO %s (
			run_id, shard, pair_index, combatant_a, combatant_b, move_a, move_b,
			schema_version, features, label, turns, turn_cap, created_at
		)
	`, s.table))
	if err != nil {
		return err
	}

	now := s.now()
	for _, e := range batch {
		if e.Shard < 0 || e.Shard > math.MaxUint16 || e.Turns < 0 || e.Turns > math.MaxUint16 {
			_ = chBatch.Abort()
			return fmt.Errorf("pair %d: shard %d or turns %d overflows UInt16", e.PairIndex, e.Shard, e.Turns)
		}
		var turnCap uint8
		if e.TurnCap {
			turnCap = 1
		}
		err := chBatch.Append(
			e.RunID,
			uint16(e.Shard),
			e.PairIndex,
			e.CombatantA,
			e.CombatantB,
			int32(e.MoveA),
			int32(e.MoveB),
			features.SchemaVersion,
			e.Features,
			e.Label(),
			uint16(e.Turns),
			turnCap,
			now,
		)
		if err != nil {
			_ = chBatch.Abort()
			return fmt.Errorf("failed to append pair %d: %w", e.PairIndex, err)
		}
	}

	return chBatch.Send()
}

// Close is a no-op; the connection belongs to the caller.
func (s *ClickHouseSink) Close() error { return nil }

// CSVSink writes one CSV file per shard under dir. Each file starts with a
// header: identifiers, then the canonical feature columns, then the label.
type CSVSink struct {
	dir   string
	runID string

	mu     sync.Mutex
	shards map[int]*csvShard
}

type csvShard struct {
	file *os.File
	w    *csv.Writer
}

func NewCSVSink(dir, runID string) (*CSVSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &CSVSink{dir: dir, runID: runID, shards: make(map[int]*csvShard)}, nil
}

// ShardPath is the file holding the given shard.
func (s *CSVSink) ShardPath(shard int) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s-shard-%03d.csv", s.runID, shard))
}

// CSVHeader is the header row of every shard file.
func CSVHeader() []string {
	h := []string{"run_id", "shard", "pair_index", "combatant_a", "combatant_b", "move_a", "move_b"}
	h = append(h, features.Columns()...)
	return append(h, "label", "turns", "turn_cap")
}

func (s *CSVSink) shard(shard int) (*csvShard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sh, ok := s.shards[shard]; ok {
		return sh, nil
	}
	f, err := os.Create(s.ShardPath(shard))
	if err != nil {
		return nil, err
	}
	sh := &csvShard{file: f, w: csv.NewWriter(f)}
	if err := sh.w.Write(CSVHeader()); err != nil {
		f.Close()
		return nil, err
	}
	s.shards[shard] = sh
	return sh, nil
}

func (s *CSVSink) Write(ctx context.Context, shard int, batch []models.Example) error {
	sh, err := s.shard(shard)
	if err != nil {
		return err
	}
	record := make([]string, 0, len(CSVHeader()))
	for _, e := range batch {
		record = record[:0]
		record = append(record,
			e.RunID,
			strconv.Itoa(e.Shard),
			strconv.FormatUint(e.PairIndex, 10),
			e.CombatantA,
			e.CombatantB,
			strconv.Itoa(e.MoveA),
			strconv.Itoa(e.MoveB),
		)
		for _, v := range e.Features {
			record = append(record, strconv.FormatFloat(v, 'g', -1, 64))
		}
		record = append(record,
			strconv.Itoa(int(e.Label())),
			strconv.Itoa(e.Turns),
			strconv.FormatBool(e.TurnCap),
		)
		if err := sh.w.Write(record); err != nil {
			return err
		}
	}
	sh.w.Flush()
	return sh.w.Error()
}

// Close flushes and closes every shard file.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for id, sh := range s.shards {
		sh.w.Flush()
		if err := sh.w.Error(); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := sh.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(s.shards, id)
	}
	return firstErr
}

// ChannelSink forwards examples to an in-process consumer.
type ChannelSink struct {
	out chan<- models.Example
}

func NewChannelSink(out chan<- models.Example) *ChannelSink {
	return &ChannelSink{out: out}
}

func (s *ChannelSink) Write(ctx context.Context, shard int, batch []models.Example) error {
	for _, e := range batch {
		select {
		case s.out <- e:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close leaves the channel open; its owner closes it.
func (s *ChannelSink) Close() error { return nil }
