package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/battlelab/matchup/internal/features"
)

var (
	resolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "matchup_model_resolutions_total",
		Help: "Model bundle resolutions by source and outcome",
	}, []string{"source", "outcome"})

	activeVersion = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "matchup_model_active",
		Help: "Set to 1 for the bundle version currently served",
	}, []string{"model", "stage", "version", "source"})
)

// DefaultLoadTimeout bounds one shared bundle load.
const DefaultLoadTimeout = 10 * time.Second

// LocalLoader is the on-disk fallback.
type LocalLoader interface {
	Load(name string) (*Manifest, error)
}

// SourceConfig configures a Source. Registry may be nil when running from
// local artifacts only.
type SourceConfig struct {
	Registry    Registry
	Local       LocalLoader
	Chart       features.Effectiveness
	LoadTimeout time.Duration
	Logger      *zap.Logger
}

// Source resolves bundles registry-first with a local fallback and caches
// each name@stage for the life of the process. Readers get the cached
// pointer without locking; Reload swaps it atomically.
type Source struct {
	registry Registry
	local    LocalLoader
	chart    features.Effectiveness
	timeout  time.Duration
	logger   *zap.SugaredLogger

	mu    sync.Mutex
	slots map[string]*atomic.Pointer[Bundle]
	group singleflight.Group
}

func NewSource(cfg SourceConfig) *Source {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.LoadTimeout
	if timeout <= 0 {
		timeout = DefaultLoadTimeout
	}
	return &Source{
		registry: cfg.Registry,
		local:    cfg.Local,
		chart:    cfg.Chart,
		timeout:  timeout,
		logger:   logger.Sugar(),
		slots:    make(map[string]*atomic.Pointer[Bundle]),
	}
}

func cacheKey(name, stage string) string {
	return name + "@" + stage
}

func (s *Source) slot(key string) *atomic.Pointer[Bundle] {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.slots[key]
	if !ok {
		p = &atomic.Pointer[Bundle]{}
		s.slots[key] = p
	}
	return p
}

// Resolve returns the cached bundle or loads it exactly once, even when many
// goroutines ask concurrently.
func (s *Source) Resolve(ctx context.Context, name, stage string) (*Bundle, error) {
	key := cacheKey(name, stage)
	slot := s.slot(key)
	if b := slot.Load(); b != nil {
		return b, nil
	}
	return s.shared(ctx, key, func(loadCtx context.Context) (*Bundle, error) {
		if b := slot.Load(); b != nil {
			return b, nil
		}
		b, err := s.load(loadCtx, name, stage)
		if err != nil {
			return nil, err
		}
		s.publish(slot, b)
		return b, nil
	})
}

// shared runs fn once per key across concurrent callers. fn runs on a context
// detached from the callers and bounded by the load timeout. A caller whose
// ctx ends stops waiting and gets ctx.Err().
func (s *Source) shared(ctx context.Context, key string, fn func(context.Context) (*Bundle, error)) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ch := s.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()
		return fn(loadCtx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Bundle), nil
	}
}

// Current returns the cached bundle without loading.
func (s *Source) Current(name, stage string) (*Bundle, bool) {
	b := s.slot(cacheKey(name, stage)).Load()
	return b, b != nil
}

// Reload re-resolves name@stage and swaps the cached bundle. On failure the
// previous bundle keeps serving. Requests already holding the old bundle
// finish with it.
func (s *Source) Reload(ctx context.Context, name, stage string) (*Bundle, error) {
	key := cacheKey(name, stage)
	slot := s.slot(key)
	return s.shared(ctx, "reload:"+key, func(loadCtx context.Context) (*Bundle, error) {
		b, err := s.load(loadCtx, name, stage)
		if err != nil {
			return nil, err
		}
		s.publish(slot, b)
		return b, nil
	})
}

func (s *Source) publish(slot *atomic.Pointer[Bundle], b *Bundle) {
	if old := slot.Swap(b); old != nil {
		activeVersion.DeleteLabelValues(old.Name, old.Stage, old.Version, old.Source)
		s.logger.Infow("Model bundle swapped",
			"model", b.Name,
			"stage", b.Stage,
			"from", old.Version,
			"to", b.Version,
		)
	}
	activeVersion.WithLabelValues(b.Name, b.Stage, b.Version, b.Source).Set(1)
}

func (s *Source) load(ctx context.Context, name, stage string) (*Bundle, error) {
	var registryErr error
	if s.registry != nil {
		b, err := s.fromRegistry(ctx, name, stage)
		if err == nil {
			return b, nil
		}
		if Fatal(err) {
			resolutions.WithLabelValues(SourceRegistry, "rejected").Inc()
			s.logger.Errorw("Registry bundle rejected", "model", name, "stage", stage, "error", err)
			return nil, err
		}
		registryErr = err
		resolutions.WithLabelValues(SourceRegistry, "failed").Inc()
		s.logger.Warnw("Registry resolution failed, falling back to local artifact",
			"model", name,
			"stage", stage,
			"error", err,
		)
	} else {
		registryErr = errors.New("no registry configured")
	}

	if s.local == nil {
		return nil, fmt.Errorf("%w: %s@%s: registry: %v; no local artifacts configured", ErrNoModel, name, stage, registryErr)
	}
	m, err := s.local.Load(name)
	if err != nil {
		resolutions.WithLabelValues(SourceLocal, "failed").Inc()
		return nil, fmt.Errorf("%w: %s@%s: registry: %v; local: %v", ErrNoModel, name, stage, registryErr, err)
	}
	if m.Stage == "" {
		m.Stage = stage
	}
	b, err := m.Bundle(s.chart)
	if err != nil {
		if Fatal(err) {
			resolutions.WithLabelValues(SourceLocal, "rejected").Inc()
			s.logger.Errorw("Local bundle rejected", "model", name, "error", err)
			return nil, err
		}
		resolutions.WithLabelValues(SourceLocal, "failed").Inc()
		return nil, fmt.Errorf("%w: %s@%s: registry: %v; local: %v", ErrNoModel, name, stage, registryErr, err)
	}
	b.Source = SourceLocal
	resolutions.WithLabelValues(SourceLocal, "ok").Inc()
	s.logger.Infow("Model bundle resolved", "model", b.Name, "version", b.Version, "source", b.Source)
	return b, nil
}

func (s *Source) fromRegistry(ctx context.Context, name, stage string) (*Bundle, error) {
	m, err := s.registry.Fetch(ctx, name, stage)
	if err != nil {
		return nil, err
	}
	b, err := m.Bundle(s.chart)
	if err != nil {
		return nil, err
	}
	b.Source = SourceRegistry
	resolutions.WithLabelValues(SourceRegistry, "ok").Inc()
	s.logger.Infow("Model bundle resolved", "model", b.Name, "version", b.Version, "source", b.Source)
	return b, nil
}
