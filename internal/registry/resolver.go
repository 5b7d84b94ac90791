package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/neomorfeo/tenantdb/internal/domain"
)

// DefaultDebounce is how long the resolver waits after the last change to
// the registry file before reloading it.
const DefaultDebounce = 200 * time.Millisecond

// Resolver is the data-access side of the registry: it loads the
// generated file and resolves tenant ids to connection parameters.
type Resolver struct {
	path     string
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.RWMutex
	artifact Artifact
}

// NewResolver creates a resolver for the registry file at path. Call
// Reload to load it and Watch to follow later rewrites.
func NewResolver(path string, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		path:     filepath.Clean(path),
		debounce: DefaultDebounce,
		logger:   logger.Named("resolver"),
	}
}

// Reload reads the registry file again and swaps it in.
func (r *Resolver) Reload() error {
	artifact, err := Load(r.path)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.artifact = artifact
	r.mu.Unlock()
	return nil
}

// Resolve returns the connection of the given tenant.
func (r *Resolver) Resolve(id domain.TenantID) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.artifact.Lookup(id)
	if !ok {
		return Entry{}, fmt.Errorf("tenant %d: %w", id, ErrConnectionNotFound)
	}
	return e, nil
}

// Entries returns every loaded connection, ordered by tenant id.
func (r *Resolver) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.artifact.Entries))
	copy(out, r.artifact.Entries)
	return out
}

// Watch reloads the registry whenever its file is replaced, until ctx is
// done. The parent directory is watched because atomic writes replace the
// file rather than modifying it.
func (r *Resolver) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	defer fsw.Close()

	dir := filepath.Dir(r.path)
	if err := fsw.Add(dir); err != nil {
		return fmt.Errorf("watching directory %s: %w", dir, err)
	}

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !r.isRelevantEvent(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			if err := r.Reload(); err != nil {
				r.logger.Warn("reloading registry failed", zap.String("path", r.path), zap.Error(err))
				continue
			}
			r.logger.Info("registry reloaded", zap.String("path", r.path), zap.Int("connections", len(r.Entries())))

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			r.logger.Warn("registry watcher error", zap.Error(err))

		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Resolver) isRelevantEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != r.path {
		return false
	}
	return event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename)
}
