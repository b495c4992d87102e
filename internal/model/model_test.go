package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/battlelab/matchup/internal/battle"
	"github.com/battlelab/matchup/internal/features"
)

// Mocks

type MockKV struct {
	mu     sync.Mutex
	Values map[string]string
	GetErr error
}

func NewMockKV() *MockKV {
	return &MockKV{Values: make(map[string]string)}
}

func (m *MockKV) Get(ctx context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return "", m.GetErr
	}
	v, ok := m.Values[key]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

func (m *MockKV) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		m.Values[key] = string(v)
	case string:
		m.Values[key] = v
	default:
		m.Values[key] = fmt.Sprint(v)
	}
	return nil
}

type MockRegistry struct {
	FetchFunc func(ctx context.Context, name, stage string) (*Manifest, error)
	Calls     atomic.Int32
}

func (m *MockRegistry) Fetch(ctx context.Context, name, stage string) (*Manifest, error) {
	m.Calls.Add(1)
	return m.FetchFunc(ctx, name, stage)
}

type MockLocal struct {
	LoadFunc func(name string) (*Manifest, error)
	Calls    atomic.Int32
}

func (m *MockLocal) Load(name string) (*Manifest, error) {
	m.Calls.Add(1)
	return m.LoadFunc(name)
}

func testManifest(name, version string) *Manifest {
	cont := features.ContinuousColumns()
	mean := make([]float64, len(cont))
	std := make([]float64, len(cont))
	for i := range std {
		std[i] = 1
	}
	return &Manifest{
		Name:          name,
		Version:       version,
		SchemaVersion: features.SchemaVersion,
		Columns:       features.Columns(),
		Scaler:        features.Scaler{Version: version, Columns: cont, Mean: mean, Std: std},
		Scorer: ScorerSpec{
			Kind:    ScorerKindLogistic,
			Version: version,
			Weights: make([]float64, features.Width()),
		},
	}
}

// Tests

func TestLogisticScore(t *testing.T) {
	l := &Logistic{Weights: []float64{1, -1}, Bias: 0}
	p, err := l.Score([]float64{2, 2})
	if err != nil || p != 0.5 {
		t.Errorf("Score = %v, %v; want 0.5", p, err)
	}
	p, _ = l.Score([]float64{3, 0})
	if want := 1 / (1 + math.Exp(-3)); p != want {
		t.Errorf("Score = %v, want %v", p, want)
	}
	if _, err := l.Score([]float64{1}); err == nil {
		t.Error("expected width error")
	}
}

func TestManifestBundle(t *testing.T) {
	chart := battle.MustDefaultTypeChart()

	b, err := testManifest("matchup", "7").Bundle(chart)
	if err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}
	if b.Encoder.Width() != features.Width() || b.SchemaVersion != features.SchemaVersion {
		t.Errorf("bundle width %d schema %s", b.Encoder.Width(), b.SchemaVersion)
	}

	tests := []struct {
		name   string
		mutate func(*Manifest)
		want   error
	}{
		{"scaler from other version", func(m *Manifest) { m.Scaler.Version = "6" }, ErrBundleMismatch},
		{"scorer from other version", func(m *Manifest) { m.Scorer.Version = "8" }, ErrBundleMismatch},
		{"old schema", func(m *Manifest) { m.SchemaVersion = "matchup-v0" }, ErrSchemaMismatch},
		{"missing column", func(m *Manifest) { m.Columns = m.Columns[1:] }, ErrSchemaMismatch},
		{"weights short", func(m *Manifest) { m.Scorer.Weights = m.Scorer.Weights[1:] }, ErrSchemaMismatch},
		{"unknown scorer", func(m *Manifest) { m.Scorer.Kind = "forest" }, ErrMalformedArtifact},
		{"zero std", func(m *Manifest) { m.Scaler.Std[0] = 0 }, ErrMalformedArtifact},
		{"no version", func(m *Manifest) { m.Version = "" }, ErrMalformedArtifact},
	}
	for _, tt := range tests {
		m := testManifest("matchup", "7")
		tt.mutate(m)
		if _, err := m.Bundle(chart); !errors.Is(err, tt.want) {
			t.Errorf("%s: got %v, want %v", tt.name, err, tt.want)
		}
	}
}

func TestRedisRegistryPublishPromoteFetch(t *testing.T) {
	ctx := context.Background()
	kv := NewMockKV()
	reg := NewRedisRegistry(kv)

	if err := reg.Promote(ctx, "matchup", "3", "production"); !errors.Is(err, ErrNotFound) {
		t.Errorf("promote unpublished: got %v, want ErrNotFound", err)
	}

	if err := reg.Publish(ctx, testManifest("matchup", "3")); err != nil {
		t.Fatal(err)
	}
	if err := reg.Promote(ctx, "matchup", "3", "production"); err != nil {
		t.Fatal(err)
	}
	if kv.Values["model:matchup:stage:production"] != "3" {
		t.Errorf("stage key = %q", kv.Values["model:matchup:stage:production"])
	}

	m, err := reg.Fetch(ctx, "matchup", "production")
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != "3" || m.Stage != "production" || len(m.Columns) != features.Width() {
		t.Errorf("fetched %s stage %s with %d columns", m.Version, m.Stage, len(m.Columns))
	}

	if _, err := reg.Fetch(ctx, "matchup", "staging"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing stage: got %v, want ErrNotFound", err)
	}

	kv.Values["model:matchup:version:9"] = "{not json"
	kv.Values["model:matchup:stage:broken"] = "9"
	if _, err := reg.Fetch(ctx, "matchup", "broken"); !errors.Is(err, ErrMalformedArtifact) {
		t.Errorf("bad payload: got %v, want ErrMalformedArtifact", err)
	}
}

func TestLocalArtifactsSaveLoad(t *testing.T) {
	local := NewLocalArtifacts(t.TempDir())
	if _, err := local.Load("matchup"); !errors.Is(err, ErrNotFound) {
		t.Errorf("empty dir: got %v, want ErrNotFound", err)
	}

	want := testManifest("matchup", "4")
	want.Scorer.Bias = 0.25
	if err := local.Save(want); err != nil {
		t.Fatal(err)
	}
	got, err := local.Load("matchup")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "4" || got.Scorer.Bias != 0.25 || len(got.Scaler.Std) != len(want.Scaler.Std) {
		t.Errorf("loaded %+v", got.Scorer)
	}
	if _, err := got.Bundle(battle.MustDefaultTypeChart()); err != nil {
		t.Errorf("round-tripped manifest rejected: %v", err)
	}
}

func TestSourceFallsBackToLocal(t *testing.T) {
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		return nil, errors.New("dial tcp: connection refused")
	}}
	local := &MockLocal{LoadFunc: func(name string) (*Manifest, error) {
		return testManifest(name, "local-1"), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Local: local, Chart: battle.MustDefaultTypeChart(), Logger: zap.NewNop()})

	b, err := src.Resolve(context.Background(), "matchup", "production")
	if err != nil {
		t.Fatalf("expected fallback success, got %v", err)
	}
	if b.Source != SourceLocal || b.Version != "local-1" || b.Stage != "production" {
		t.Errorf("resolved %s@%s from %s", b.Version, b.Stage, b.Source)
	}

	// Cached: neither source is consulted again.
	again, err := src.Resolve(context.Background(), "matchup", "production")
	if err != nil || again != b {
		t.Errorf("second resolve returned %p (%v), want cached %p", again, err, b)
	}
	if reg.Calls.Load() != 1 || local.Calls.Load() != 1 {
		t.Errorf("registry calls %d, local calls %d; want 1 and 1", reg.Calls.Load(), local.Calls.Load())
	}
}

func TestSourceCancelledCallerDoesNotFallBack(t *testing.T) {
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return testManifest(name, "reg-1"), nil
	}}
	local := &MockLocal{LoadFunc: func(name string) (*Manifest, error) {
		return testManifest(name, "local-1"), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Local: local, Chart: battle.MustDefaultTypeChart()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Resolve(ctx, "matchup", "production"); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if _, ok := src.Current("matchup", "production"); ok {
		t.Fatal("cancelled resolve cached a bundle")
	}

	b, err := src.Resolve(context.Background(), "matchup", "production")
	if err != nil {
		t.Fatal(err)
	}
	if b.Source != SourceRegistry || b.Version != "reg-1" {
		t.Errorf("resolved %s from %s, want reg-1 from registry", b.Version, b.Source)
	}
	if local.Calls.Load() != 0 {
		t.Errorf("local artifacts consulted %d times", local.Calls.Load())
	}
}

func TestSourceReloadOutlivesCancelledCaller(t *testing.T) {
	var version atomic.Int32
	version.Store(1)
	var sawCancel atomic.Bool
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		if v := version.Load(); v > 1 {
			select {
			case started <- struct{}{}:
			default:
			}
			<-release
		}
		if err := ctx.Err(); err != nil {
			sawCancel.Store(true)
			return nil, err
		}
		return testManifest(name, fmt.Sprint(version.Load())), nil
	}}
	local := &MockLocal{LoadFunc: func(name string) (*Manifest, error) {
		return testManifest(name, "local-1"), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Local: local, Chart: battle.MustDefaultTypeChart()})
	if _, err := src.Resolve(context.Background(), "matchup", "production"); err != nil {
		t.Fatal(err)
	}

	version.Store(2)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := src.Reload(ctx, "matchup", "production")
		errc <- err
	}()
	<-started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	close(release)

	b, err := src.Reload(context.Background(), "matchup", "production")
	if err != nil {
		t.Fatal(err)
	}
	if b.Source != SourceRegistry || b.Version != "2" {
		t.Errorf("reloaded %s from %s, want 2 from registry", b.Version, b.Source)
	}
	if cur, _ := src.Current("matchup", "production"); cur.Source != SourceRegistry {
		t.Errorf("serving bundle from %s", cur.Source)
	}
	if sawCancel.Load() || local.Calls.Load() != 0 {
		t.Errorf("registry saw cancel %v, local calls %d", sawCancel.Load(), local.Calls.Load())
	}
}

func TestSourcePrefersRegistry(t *testing.T) {
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		m := testManifest(name, "reg-2")
		m.Stage = stage
		return m, nil
	}}
	local := &MockLocal{LoadFunc: func(name string) (*Manifest, error) {
		return testManifest(name, "local-1"), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Local: local, Chart: battle.MustDefaultTypeChart()})

	b, err := src.Resolve(context.Background(), "matchup", "production")
	if err != nil {
		t.Fatal(err)
	}
	if b.Source != SourceRegistry || b.Version != "reg-2" {
		t.Errorf("resolved %s from %s", b.Version, b.Source)
	}
	if local.Calls.Load() != 0 {
		t.Errorf("local consulted %d times", local.Calls.Load())
	}
}

func TestSourceRejectsMismatchedRegistryBundle(t *testing.T) {
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		m := testManifest(name, "5")
		m.Scaler.Version = "4"
		return m, nil
	}}
	local := &MockLocal{LoadFunc: func(name string) (*Manifest, error) {
		return testManifest(name, "local-1"), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Local: local, Chart: battle.MustDefaultTypeChart()})

	if _, err := src.Resolve(context.Background(), "matchup", "production"); !errors.Is(err, ErrBundleMismatch) {
		t.Fatalf("got %v, want ErrBundleMismatch", err)
	}
	if local.Calls.Load() != 0 {
		t.Error("a mismatched bundle must not be masked by the fallback")
	}
	if _, ok := src.Current("matchup", "production"); ok {
		t.Error("rejected bundle was cached")
	}
}

func TestSourceNoModel(t *testing.T) {
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		return nil, ErrNotFound
	}}
	local := &MockLocal{LoadFunc: func(name string) (*Manifest, error) {
		return nil, ErrNotFound
	}}
	src := NewSource(SourceConfig{Registry: reg, Local: local, Chart: battle.MustDefaultTypeChart()})

	if _, err := src.Resolve(context.Background(), "matchup", "production"); !errors.Is(err, ErrNoModel) {
		t.Errorf("got %v, want ErrNoModel", err)
	}

	localOnly := NewSource(SourceConfig{Chart: battle.MustDefaultTypeChart()})
	if _, err := localOnly.Resolve(context.Background(), "matchup", "production"); !errors.Is(err, ErrNoModel) {
		t.Errorf("no sources: got %v, want ErrNoModel", err)
	}
}

func TestSourceLoadsOnceUnderConcurrency(t *testing.T) {
	release := make(chan struct{})
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		<-release
		return testManifest(name, "1"), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Chart: battle.MustDefaultTypeChart()})

	const callers = 32
	results := make([]*Bundle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b, err := src.Resolve(context.Background(), "matchup", "production")
			if err != nil {
				t.Error(err)
				return
			}
			results[i] = b
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if reg.Calls.Load() != 1 {
		t.Errorf("registry fetched %d times, want 1", reg.Calls.Load())
	}
	for i, b := range results {
		if b != results[0] {
			t.Errorf("caller %d got a different bundle", i)
		}
	}
}

func TestSourceReloadSwapsAtomically(t *testing.T) {
	var version atomic.Int32
	version.Store(1)
	reg := &MockRegistry{FetchFunc: func(ctx context.Context, name, stage string) (*Manifest, error) {
		return testManifest(name, fmt.Sprint(version.Load())), nil
	}}
	src := NewSource(SourceConfig{Registry: reg, Chart: battle.MustDefaultTypeChart()})
	ctx := context.Background()

	old, err := src.Resolve(ctx, "matchup", "production")
	if err != nil {
		t.Fatal(err)
	}

	version.Store(2)
	fresh, err := src.Reload(ctx, "matchup", "production")
	if err != nil {
		t.Fatal(err)
	}
	if fresh.Version != "2" {
		t.Errorf("reloaded version %s, want 2", fresh.Version)
	}
	cur, _ := src.Current("matchup", "production")
	if cur != fresh {
		t.Error("cache not swapped")
	}
	// A reader holding the old bundle can keep scoring with it.
	if old.Version != "1" || old.Encoder == nil {
		t.Errorf("old bundle mutated: %+v", old)
	}

	// A failing reload keeps the current bundle.
	reg.FetchFunc = func(ctx context.Context, name, stage string) (*Manifest, error) {
		m := testManifest(name, "3")
		m.SchemaVersion = "matchup-v9"
		return m, nil
	}
	if _, err := src.Reload(ctx, "matchup", "production"); !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("got %v, want ErrSchemaMismatch", err)
	}
	if cur, _ := src.Current("matchup", "production"); cur != fresh {
		t.Error("failed reload replaced the served bundle")
	}
}
