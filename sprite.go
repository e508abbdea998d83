// Package sprite composes the images of a set of items into one vertical
// sprite, caches the result under the content hash of the request and
// renders the CSS needed to show each item.
package sprite

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i5heu/ouroboros-sprite/internal/config"
	"github.com/i5heu/ouroboros-sprite/internal/imageStore"
	"github.com/i5heu/ouroboros-sprite/internal/keyValStore"
	"github.com/i5heu/ouroboros-sprite/internal/metadataStore"
	"github.com/i5heu/ouroboros-sprite/internal/recordStore"
	"github.com/i5heu/ouroboros-sprite/pkg/builder"
	"github.com/i5heu/ouroboros-sprite/pkg/compositor"
	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/render"
	"github.com/i5heu/ouroboros-sprite/pkg/spriteCache"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	workerpool "github.com/i5heu/ouroboros-sprite/pkg/workerPool"
	"github.com/sirupsen/logrus"
)

var (
	ErrNotStarted = errors.New("sprite: service not started")
	ErrClosed     = errors.New("sprite: service closed")
)

// Config configures the service. The embedded file configuration is usually
// obtained from LoadConfig or DefaultConfig.
type Config struct {
	config.Config
	// Logger is optional. If nil, a logger at Config.LogLevel is used.
	Logger *logrus.Logger
	// Metadata replaces the manifest catalog when set.
	Metadata interfaces.MetadataStore
}

func DefaultConfig() Config {
	return Config{Config: config.Default()}
}

func LoadConfig(path string) (Config, error) {
	c, err := config.LoadConfig(path)
	if err != nil {
		return Config{}, err
	}
	return Config{Config: c}, nil
}

// Sprite is the service handle. It owns the record store, the decode pool
// and the builder.
type Sprite struct {
	log    *logrus.Logger
	config Config

	mu      sync.RWMutex
	records interfaces.RecordStore
	pool    *workerpool.WorkerPool
	cache   *spriteCache.Cache
	builder *builder.Builder

	inflight  sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
}

// New validates conf and returns a handle. Call Start before use.
func New(conf Config) (*Sprite, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if conf.Metadata == nil && conf.Manifest == "" {
		return nil, errors.New("either a manifest or a metadata store must be configured")
	}
	if conf.Logger == nil {
		conf.Logger = conf.Config.Logger()
	}
	return &Sprite{
		log:    conf.Logger,
		config: conf,
	}, nil
}

// Start opens the stores and wires the builder. Only the first call has
// effect.
func (s *Sprite) Start(ctx context.Context) error {
	var startErr error
	s.startOnce.Do(func() {
		startErr = s.start(ctx)
		if startErr != nil {
			return
		}
		s.started.Store(true)
		s.log.WithFields(logrus.Fields{
			"dataDir": s.config.DataDir,
			"backend": s.config.RecordBackend,
		}).Info("sprite service started")
	})
	return startErr
}

func (s *Sprite) start(ctx context.Context) error {
	conf := s.config
	if err := os.MkdirAll(conf.DataDir, 0o700); err != nil {
		return fmt.Errorf("mkdir %s: %w", conf.DataDir, err)
	}

	records, err := s.openRecordStore(ctx)
	if err != nil {
		return err
	}

	images, err := imageStore.NewFileStore(imageStore.Config{
		BaseDir:   conf.UploadDir,
		SpriteDir: conf.SpriteDir,
		URLPrefix: conf.URLPrefix,
		Logger:    s.log,
	})
	if err != nil {
		_ = records.Close()
		return err
	}

	metadata := conf.Metadata
	if metadata == nil {
		metadata, err = metadataStore.LoadManifest(conf.Manifest, conf.UploadDir, s.log)
		if err != nil {
			_ = records.Close()
			return err
		}
	}

	cache, err := spriteCache.New(records, s.log)
	if err != nil {
		_ = records.Close()
		return err
	}

	format, err := compositor.ParseFormat(conf.OutputFormat)
	if err != nil {
		_ = records.Close()
		return err
	}

	var pool *workerpool.WorkerPool
	if conf.DecodeWorkers > 0 {
		pool = workerpool.NewWorkerPool(workerpool.Config{WorkerCount: conf.DecodeWorkers})
	}

	b, err := builder.New(builder.Config{
		Metadata: metadata,
		Images:   images,
		Cache:    cache,
		Pool:     pool,
		Output:   compositor.Options{Format: format, JPEGQuality: conf.JPEGQuality},
		Timeout:  conf.BuildTimeout,
		Logger:   s.log,
	})
	if err != nil {
		if pool != nil {
			pool.Close()
		}
		_ = records.Close()
		return err
	}

	s.mu.Lock()
	s.records = records
	s.pool = pool
	s.cache = cache
	s.builder = b
	s.mu.Unlock()
	return nil
}

func (s *Sprite) openRecordStore(ctx context.Context) (interfaces.RecordStore, error) {
	switch s.config.RecordBackend {
	case config.BackendSQLite:
		store, err := recordStore.NewSQLiteStore(ctx, filepath.Join(s.config.DataDir, "records.db"), s.log)
		if err != nil {
			return nil, fmt.Errorf("init sqlite record store: %w", err)
		}
		return store, nil
	default:
		kvDir := filepath.Join(s.config.DataDir, "kv")
		if err := os.MkdirAll(kvDir, 0o700); err != nil {
			return nil, fmt.Errorf("mkdir %s: %w", kvDir, err)
		}
		kv, err := keyValStore.NewKeyValStore(keyValStore.StoreConfig{
			Paths:            []string{kvDir},
			MinimumFreeSpace: s.config.MinimumFreeGB,
			Logger:           s.log,
		})
		if err != nil {
			return nil, fmt.Errorf("init kv: %w", err)
		}
		return recordStore.NewBadgerStore(kv, s.log), nil
	}
}

// Run starts the service, blocks until ctx is canceled and then shuts down.
func (s *Sprite) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Close(shutdownCtx)
}

// Get returns the sprite of items at sizeVariant, building it on first use.
// An empty sizeVariant selects the configured default.
func (s *Sprite) Get(ctx context.Context, items []int64, sizeVariant string) (types.SpriteRecord, error) {
	h, release, err := s.acquire()
	if err != nil {
		return types.SpriteRecord{}, err
	}
	defer release()

	if sizeVariant == "" {
		sizeVariant = s.config.DefaultSizeVariant
	}
	return h.builder.Build(ctx, types.SpriteRequest{Items: items, SizeVariant: sizeVariant})
}

// Position returns the background position of itemID inside the sprite of
// items.
func (s *Sprite) Position(ctx context.Context, items []int64, sizeVariant string, itemID int64) (render.Position, error) {
	rec, err := s.Get(ctx, items, sizeVariant)
	if err != nil {
		return render.Position{}, err
	}
	return render.BackgroundPosition(rec, itemID)
}

// Lookup returns a stored record without building it.
func (s *Sprite) Lookup(ctx context.Context, hash types.ContentHash) (types.SpriteRecord, bool, error) {
	h, release, err := s.acquire()
	if err != nil {
		return types.SpriteRecord{}, false, err
	}
	defer release()
	return h.cache.Load(ctx, hash)
}

// List returns every stored sprite record.
func (s *Sprite) List(ctx context.Context) ([]types.SpriteRecord, error) {
	h, release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return h.cache.List(ctx)
}

type handles struct {
	builder *builder.Builder
	cache   *spriteCache.Cache
}

// acquire registers an in-flight call. Close waits for release before it
// tears the stores down.
func (s *Sprite) acquire() (handles, func(), error) {
	if !s.started.Load() && !s.closed.Load() {
		return handles{}, nil, ErrNotStarted
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() || s.builder == nil {
		return handles{}, nil, ErrClosed
	}
	s.inflight.Add(1)
	return handles{builder: s.builder, cache: s.cache}, s.inflight.Done, nil
}

// Close waits for running calls, then stops the decode pool and closes the
// record store. When ctx ends first the stores are closed anyway. Close is
// idempotent.
func (s *Sprite) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed.Store(true)
		s.mu.Unlock()

		drained := make(chan struct{})
		go func() {
			s.inflight.Wait()
			close(drained)
		}()
		select {
		case <-drained:
		case <-ctx.Done():
			closeErr = fmt.Errorf("waiting for running calls: %w", ctx.Err())
			s.log.WithError(ctx.Err()).Warn("closing with calls still running")
		}

		s.mu.Lock()
		records, pool := s.records, s.pool
		s.records, s.pool, s.cache, s.builder = nil, nil, nil, nil
		s.mu.Unlock()

		if pool != nil {
			pool.Close()
		}
		if records != nil {
			if err := records.Close(); err != nil {
				closeErr = errors.Join(closeErr, fmt.Errorf("close record store: %w", err))
			}
		}
		s.log.Info("sprite service closed")
	})
	return closeErr
}
