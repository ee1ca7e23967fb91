package runstore

import (
	"context"
	"fmt"
	"time"

	"github.com/macho715/tr-dash-sub000/pkg/config"
)

// Open builds a backend from configuration.
func Open(ctx context.Context, cfg config.RunStoreConfig) (Backend, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalBackend(cfg.Dir)
	case "redis":
		rc := DefaultRedisConfig(cfg.Redis.Addr)
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.TTLDays > 0 {
			rc.TTL = time.Duration(cfg.Redis.TTLDays) * 24 * time.Hour
		}
		return NewRedisBackend(ctx, rc)
	case "s3":
		sc := DefaultS3Config(cfg.S3.Bucket)
		if cfg.S3.Prefix != "" {
			sc.Prefix = cfg.S3.Prefix
		}
		sc.Region = cfg.S3.Region
		sc.Endpoint = cfg.S3.Endpoint
		return NewS3Backend(ctx, sc)
	default:
		return nil, fmt.Errorf("unknown run store backend %q", cfg.Backend)
	}
}

// MultiBackend writes runs to two backends for redundancy.
type MultiBackend struct {
	primary   Backend
	secondary Backend
}

// NewMultiBackend creates a backend that writes to both primary and
// secondary. Reads prefer the primary.
func NewMultiBackend(primary, secondary Backend) *MultiBackend {
	return &MultiBackend{primary: primary, secondary: secondary}
}

// Save writes to both backends; the secondary is best-effort.
func (m *MultiBackend) Save(ctx context.Context, run *Run) error {
	if err := m.primary.Save(ctx, run); err != nil {
		return err
	}
	_ = m.secondary.Save(ctx, run)
	return nil
}

// Load reads from primary, falling back to secondary.
func (m *MultiBackend) Load(ctx context.Context, id string) (*Run, error) {
	run, err := m.primary.Load(ctx, id)
	if err == nil {
		return run, nil
	}
	return m.secondary.Load(ctx, id)
}

// Delete removes from both backends.
func (m *MultiBackend) Delete(ctx context.Context, id string) error {
	err1 := m.primary.Delete(ctx, id)
	err2 := m.secondary.Delete(ctx, id)
	if err1 != nil {
		return err1
	}
	return err2
}

// List returns the primary's view.
func (m *MultiBackend) List(ctx context.Context) ([]*Run, error) {
	return m.primary.List(ctx)
}

// Name returns the combined backend names.
func (m *MultiBackend) Name() string {
	return m.primary.Name() + "+" + m.secondary.Name()
}

// Close closes both backends.
func (m *MultiBackend) Close() error {
	err1 := m.primary.Close()
	err2 := m.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
