// Package app assembles the orchestrator and its persistence from config.
// The companion server and the CLI share it.
package app

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/GoPolymarket/frontdoor/internal/chain"
	"github.com/GoPolymarket/frontdoor/internal/config"
	"github.com/GoPolymarket/frontdoor/internal/gateway"
	"github.com/GoPolymarket/frontdoor/internal/identity"
	"github.com/GoPolymarket/frontdoor/internal/launch"
	"github.com/GoPolymarket/frontdoor/internal/middleware"
	"github.com/GoPolymarket/frontdoor/internal/pkg/logger"
	"github.com/GoPolymarket/frontdoor/internal/poller"
	"github.com/GoPolymarket/frontdoor/internal/repository"
	"github.com/GoPolymarket/frontdoor/internal/service"
	"github.com/GoPolymarket/frontdoor/internal/signing"
	"github.com/GoPolymarket/frontdoor/internal/wallet"
)

type App struct {
	Config       *config.Config
	Orchestrator *service.Orchestrator
	Gateway      *gateway.Client
	AuditRepo    service.AuditRepo
	Idempotency  middleware.IdempotencyStore
	// Wallet is the key-backed transport, nil when no key is configured.
	Wallet *wallet.KeyTransport

	closers []func()
}

// Options tune wiring for the calling surface.
type Options struct {
	Navigate    service.Navigator
	Interactive bool
}

// New builds every dependency. Redis and Postgres are optional; without them
// launches are kept in memory for the life of the process.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg}

	a.Gateway = gateway.NewClient(cfg.Gateway.BaseURL, ms(cfg.Gateway.TimeoutMs), cfg.Gateway.RPS, cfg.Gateway.Burst)

	var store service.LaunchStore = repository.NewMemoryLaunchRepo()
	var active service.ActiveCache = repository.NewMemoryActiveCache()
	a.Idempotency = middleware.NewInMemIdempotencyStore(time.Duration(cfg.Redis.TTLSeconds) * time.Second)

	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("Connected to PostgreSQL")
			store = repository.NewPostgresLaunchRepo(db)
			audit := repository.NewPostgresAuditRepo(db)
			a.AuditRepo = audit
			if days := cfg.Database.AuditRetentionDays; days > 0 {
				if err := audit.Cleanup(ctx, time.Duration(days)*24*time.Hour); err != nil {
					logger.Warn("Audit retention cleanup failed", "error", err)
				}
			}
			if sqlDB, err := db.DB(); err == nil {
				a.closers = append(a.closers, func() { _ = sqlDB.Close() })
			}
		} else {
			logger.Error("Failed to connect to DB, launch history stays in memory", "error", err)
		}
	}

	if cfg.Redis.Addr != "" {
		rc, err := repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("Connected to Redis")
			ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
			active = repository.NewActiveSessionCache(rc, ttl)
			a.Idempotency = repository.NewRedisIdempotencyStore(rc, ttl)
			if a.AuditRepo == nil {
				a.AuditRepo = repository.NewRedisAuditRepo(rc, 0)
			}
			a.closers = append(a.closers, func() { _ = rc.Close() })
		} else {
			logger.Error("Failed to connect to Redis, falling back to memory", "error", err)
		}
	}

	var transport wallet.Transport
	if cfg.Wallet.PrivateKey != "" {
		kt, err := keyTransport(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.Wallet = kt
		transport = kt
	}

	var verifier launch.SignatureVerifier
	if cfg.Launch.VerifySignatures {
		contract := signing.NewContractVerifier(signing.ContractVerifierOptions{
			RPCURL:   cfg.Chain.RPCURL,
			CacheTTL: time.Duration(cfg.Chain.EIP1271CacheSec) * time.Second,
			Timeout:  ms(cfg.Chain.EIP1271TimeoutMs),
			Retries:  cfg.Chain.EIP1271Retries,
		})
		verifier = signing.NewVerifier(contract)
	}

	identityTimeout := ms(cfg.Identity.TimeoutMs)
	providers := func(appID, clientID string) identity.Provider {
		if cfg.Identity.AppID != "" {
			appID = cfg.Identity.AppID
		}
		if cfg.Identity.ClientID != "" {
			clientID = cfg.Identity.ClientID
		}
		return identity.NewHTTPProvider(cfg.Identity.BaseURL, appID, clientID, identityTimeout)
	}

	a.Orchestrator = service.NewOrchestrator(service.Deps{
		Gateway:   a.Gateway,
		Identity:  providers,
		Transport: transport,
		Vendor:    wallet.ParseVendor(cfg.Wallet.Vendor),
		Policy:    chain.NewPolicy(Hostname(cfg), cfg.Chain.RequiredNetworks),
		Verifier:  verifier,
		Store:     store,
		Active:    active,
		Poll: poller.Options{
			Interval:             ms(cfg.Poll.IntervalMs),
			MinInterval:          ms(cfg.Poll.MinIntervalMs),
			Interactive:          cfg.Poll.Interactive || opts.Interactive,
			MaxConsecutiveErrors: cfg.Poll.MaxConsecutiveErrors,
			Origin:               cfg.Poll.Origin,
		},
		Navigate: opts.Navigate,
	})
	return a, nil
}

// Close stops polling and releases connections.
func (a *App) Close() {
	if a.Orchestrator != nil {
		a.Orchestrator.Close()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// Hostname is the deployment host used for the network requirement.
func Hostname(cfg *config.Config) string {
	if cfg.Chain.Hostname != "" {
		return cfg.Chain.Hostname
	}
	u, err := url.Parse(cfg.Gateway.BaseURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func keyTransport(ctx context.Context, cfg *config.Config) (*wallet.KeyTransport, error) {
	if cfg.Wallet.RPCURL != "" {
		kt, err := wallet.DialKeyTransport(ctx, cfg.Wallet.PrivateKey, cfg.Wallet.RPCURL)
		if err == nil {
			return kt, nil
		}
		logger.Warn("Could not read chain id from RPC, using configured chain", "error", err)
	}
	kt, err := wallet.NewKeyTransport(cfg.Wallet.PrivateKey, cfg.Wallet.ChainID)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	return kt, nil
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
