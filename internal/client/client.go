// Package client wires the sync engine, the backend SDK and the local
// control plane into a single long-running daemon.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/docboxhq/docbox/internal/client/config"
	"github.com/docboxhq/docbox/internal/client/sync"
	"github.com/docboxhq/docbox/internal/docsdk"
)

const (
	storeFileName = "docbox.db"
	lockFileName  = "docbox.lock"

	probeInterval = 30 * time.Second
)

type Client struct {
	config  *config.Config
	sdk     *docsdk.SDK
	store   *sync.SqliteStore
	monitor *sync.Monitor
	engine  *sync.Engine
	cp      *ControlPlaneServer
	lock    *flock.Flock
}

func New(cfg *config.Config, cpConfig *ControlPlaneConfig) (*Client, error) {
	sdk, err := docsdk.New(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("create sdk: %w", err)
	}

	store, err := sync.NewSqliteStore(filepath.Join(cfg.DataDir, storeFileName))
	if err != nil {
		return nil, err
	}

	// offline until the first probe succeeds
	monitor := sync.NewMonitor(true)

	engine, err := sync.NewEngine(store, &sdkBackend{docs: sdk.Documents}, monitor,
		sync.WithIgnoreList(sync.NewIgnoreList(cfg.IgnorePatterns...)),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	c := &Client{
		config:  cfg,
		sdk:     sdk,
		store:   store,
		monitor: monitor,
		engine:  engine,
		lock:    flock.New(filepath.Join(cfg.DataDir, lockFileName)),
	}

	if cpConfig != nil {
		cp, err := NewControlPlaneServer(cpConfig, engine)
		if err != nil {
			store.Close()
			return nil, err
		}
		c.cp = cp
	}

	return c, nil
}

// Engine exposes the sync engine for embedding hosts.
func (c *Client) Engine() *sync.Engine {
	return c.engine
}

// Start runs the daemon until ctx is cancelled.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("docbox client start", "datadir", c.config.DataDir, "server", c.config.ServerURL)

	locked, err := c.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another docbox instance is using %s", c.config.DataDir)
	}
	defer c.lock.Unlock()

	authenticated := c.config.AuthToken != ""
	if authenticated {
		if err := c.sdk.Login(c.config.AuthToken); err != nil {
			return fmt.Errorf("login: %w", err)
		}
	} else {
		slog.Warn("no auth token configured, running local-only")
	}

	c.engine.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)

	if authenticated {
		g.Go(func() error {
			c.monitor.RunProbe(gctx, c.sdk.Documents.Health, probeInterval)
			return nil
		})
		g.Go(func() error {
			return c.runEvents(gctx)
		})
	}

	if c.cp != nil {
		g.Go(func() error {
			return c.cp.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return c.cp.Stop(shutdownCtx)
		})
	}

	err = g.Wait()

	c.sdk.Close()
	if cerr := c.engine.Close(); cerr != nil {
		slog.Error("close engine", "error", cerr)
	}
	slog.Info("docbox client stop")

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// runEvents consumes remote-change pushes and feeds them into the engine.
func (c *Client) runEvents(ctx context.Context) error {
	if err := c.sdk.Events.Connect(ctx); err != nil {
		return fmt.Errorf("connect events socket: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ch, ok := <-c.sdk.Events.Changes():
			if !ok {
				return nil
			}
			c.sdk.Documents.Invalidate(ch.DocumentID)
			if err := c.engine.ApplyRemoteChange(ctx, ch.DocumentID, ch.Version, ch.Deleted); err != nil {
				slog.Error("apply remote change", "document", ch.DocumentID, "error", err)
			}
		}
	}
}
