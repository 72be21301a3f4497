package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/flowchat"
	"github.com/aretw0/flowchat/internal/adapters/file"
	"github.com/aretw0/flowchat/internal/config"
	"github.com/aretw0/flowchat/pkg/adapters/memory"
	"github.com/aretw0/flowchat/pkg/adapters/redis"
	"github.com/aretw0/flowchat/pkg/domain"
	"github.com/aretw0/flowchat/pkg/observability"
	"github.com/aretw0/flowchat/pkg/persistence/middleware"
	"github.com/aretw0/flowchat/pkg/ports"
	"github.com/aretw0/flowchat/pkg/session"
)

// Persistence bundles the store built from configuration with its optional
// distributed locker.
type Persistence struct {
	Store  ports.StateStore
	Locker ports.DistributedLocker
	close  func() error
}

// Close releases the backing connections.
func (p *Persistence) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// Sessions builds a session manager over the store, using the distributed
// locker when the backend offers one.
func (p *Persistence) Sessions(logger *slog.Logger) *session.Manager {
	opts := []session.Option{session.WithLogger(logger)}
	if p.Locker != nil {
		opts = append(opts, session.WithLocker(p.Locker))
	}
	return session.NewManager(p.Store, opts...)
}

// NewPersistence creates the store selected by cfg and wraps it with the PII
// and encryption middlewares when they are configured.
func NewPersistence(ctx context.Context, cfg config.Store, logger *slog.Logger) (*Persistence, error) {
	p := &Persistence{}

	switch cfg.Kind {
	case config.StoreFile:
		p.Store = file.New(cfg.Path)
	case config.StoreRedis:
		var opts []redis.Option
		if cfg.Prefix != "" {
			opts = append(opts, redis.WithPrefix(cfg.Prefix))
		}
		if cfg.TTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.TTL))
		}
		rs := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		if err := rs.Client().Ping(ctx).Err(); err != nil {
			_ = rs.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		p.Store = rs
		p.Locker = redis.NewLocker(rs.Client(), rs.Prefix())
		p.close = rs.Close
	default:
		p.Store = memory.NewStore()
	}

	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, pii)
	}
	key, err := cfg.EncryptionKey()
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	if key != nil {
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		mws = append(mws, enc)
	}
	if len(mws) > 0 {
		p.Store = middleware.Chain(p.Store, mws...)
	}

	logger.Debug("Persistence ready", "kind", cfg.Kind, "locker", p.Locker != nil, "middlewares", len(mws))
	return p, nil
}

// NewEngine builds a flowchat engine for the configured backend. Extra hooks
// (metrics) are combined with debug logging hooks when debug is set.
func NewEngine(cfg config.Backend, logger *slog.Logger, debug bool, hooks ...domain.LifecycleHooks) (*flowchat.Engine, error) {
	if debug {
		hooks = append(hooks, observability.LoggingHooks(logger))
	}

	opts := []flowchat.Option{
		flowchat.WithLogger(logger),
		flowchat.WithTimeout(cfg.Timeout),
	}
	if cfg.Token != "" {
		opts = append(opts, flowchat.WithToken(cfg.Token))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, flowchat.WithHeaders(cfg.Headers))
	}
	if len(hooks) > 0 {
		opts = append(opts, flowchat.WithLifecycleHooks(observability.CombineHooks(hooks...)))
	}

	engine, err := flowchat.New(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("error initializing flowchat: %w", err)
	}
	return engine, nil
}
