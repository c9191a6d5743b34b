// Package daemon composes the archive daemon out of the internal packages
// via fx providers and a single lifecycle hook.
package daemon

import (
	"context"
	"errors"
	"os"

	"github.com/pcruz7/tgarc/internal/bus"
	"github.com/pcruz7/tgarc/internal/config"
	"github.com/pcruz7/tgarc/internal/embed"
	"github.com/pcruz7/tgarc/internal/lock"
	"github.com/pcruz7/tgarc/internal/logging"
	"github.com/pcruz7/tgarc/internal/pipeline"
	"github.com/pcruz7/tgarc/internal/scheduler"
	"github.com/pcruz7/tgarc/internal/session"
	"github.com/pcruz7/tgarc/internal/status"
	"github.com/pcruz7/tgarc/internal/store"
	intsync "github.com/pcruz7/tgarc/internal/sync"
	"github.com/pcruz7/tgarc/internal/tg"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved account configuration passed to the fx module.
// Client is the platform transport; the daemon itself never links a wire
// protocol implementation.
type Params struct {
	Account string
	Client  tg.RemoteClient
}

// Schedulers bundles the per-kind schedulers for injection.
type Schedulers struct {
	Metadata *scheduler.Scheduler
	Messages *scheduler.Scheduler
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideCore,
			provideStateMachine,
			provideLock,
			provideStore,
			provideSessionStore,
			provideClient,
			provideEmbedder,
			provideConn,
			providePipeline,
			provideSchedulers,
			provideOrchestrator,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Account), p.Account)
}

func provideConfig(logger *zap.Logger) (*config.Config, error) {
	cfg, err := config.Load(session.ConfigPath())
	if errors.Is(err, os.ErrNotExist) {
		logger.Info("no config file, using defaults")
		return config.Defaults(), nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func provideCore(logger *zap.Logger) *bus.Core {
	return bus.New(logger)
}

func provideStateMachine(core *bus.Core) *status.Machine {
	return status.NewMachine(core)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Account); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.Account))
	l, err := lock.Acquire(session.Dir(p.Account))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.ArchiveDBPath(p.Account)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideSessionStore() *session.Store {
	return session.NewStore()
}

func provideClient(p Params) (tg.RemoteClient, error) {
	if p.Client == nil {
		return nil, errors.New("no platform transport configured")
	}
	return p.Client, nil
}

// provideEmbedder returns nil when no API key is present; the pipeline then
// runs without the embedding stage.
func provideEmbedder(cfg *config.Config, logger *zap.Logger) embed.Provider {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		logger.Info("OPENAI_API_KEY not set, embeddings disabled")
		return nil
	}
	return embed.NewOpenAI(key, os.Getenv("TGARC_OPENAI_BASE_URL"), cfg.EmbeddingModel, cfg.EmbeddingDim)
}

func provideConn(p Params, client tg.RemoteClient, sessions *session.Store, core *bus.Core, machine *status.Machine, logger *zap.Logger) *tg.Conn {
	return tg.NewConn(p.Account, client, sessions, core, machine, logger)
}

func providePipeline(p Params, db *store.DB, client tg.RemoteClient, embedder embed.Provider, cfg *config.Config, core *bus.Core, logger *zap.Logger) (*pipeline.Pipeline, error) {
	pipe := pipeline.New(db, core, logger)

	resolvers := []pipeline.Resolver{
		pipeline.NewSenderResolver(),
		pipeline.NewTokenizeResolver(),
	}
	if embedder != nil {
		resolvers = append(resolvers, pipeline.NewEmbedResolver(embedder))
	}
	resolvers = append(resolvers,
		pipeline.NewMediaResolver(client, session.MediaDir(p.Account), cfg.SkipMedia, logger))

	for _, r := range resolvers {
		if err := pipe.Register(r); err != nil {
			return nil, err
		}
	}
	logger.Info("pipeline ready", zap.Strings("resolvers", pipe.Names()))
	return pipe, nil
}

func provideSchedulers(cfg *config.Config, db *store.DB, logger *zap.Logger) Schedulers {
	return Schedulers{
		Metadata: scheduler.New(intsync.KindMetadata, cfg.MetadataConcurrency, db, logger),
		Messages: scheduler.New(intsync.KindMessages, cfg.MessageConcurrency, db, logger),
	}
}

func provideOrchestrator(client tg.RemoteClient, db *store.DB, pipe *pipeline.Pipeline, scheds Schedulers, core *bus.Core, logger *zap.Logger) *intsync.Orchestrator {
	takeouts := tg.NewTakeoutManager(client, logger)
	messageExec := intsync.NewMessageExecutor(
		tg.NewTakeoutFetcher(client, takeouts, logger),
		tg.NewLiveFetcher(client, logger),
		pipe, db, logger)
	metadataExec := intsync.NewMetadataExecutor(client, db, logger)

	o := intsync.NewOrchestrator(core, db, logger)
	o.RegisterKind(intsync.KindMetadata, scheds.Metadata, metadataExec)
	o.RegisterKind(intsync.KindMessages, scheds.Messages, messageExec)
	return o
}

func registerLifecycle(lc fx.Lifecycle, p Params, conn *tg.Conn, orch *intsync.Orchestrator, client tg.RemoteClient, core *bus.Core, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	loopCtx, stopLoop := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go runCommandLoop(loopCtx, core, orch, logger)

			go func() {
				if err := conn.Login(loopCtx); err != nil {
					logger.Error("login failed", zap.Error(err))
				}
			}()

			logger.Info("daemon started", zap.String("account", p.Account))
			return nil
		},
		OnStop: func(_ context.Context) error {
			stopLoop()
			if err := client.Disconnect(); err != nil {
				logger.Warn("disconnect failed", zap.Error(err))
			}
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

// runCommandLoop services sync commands from the bus until ctx ends. The
// auth challenge commands are consumed by the connection itself.
func runCommandLoop(ctx context.Context, core *bus.Core, orch *intsync.Orchestrator, logger *zap.Logger) {
	startCh, unsubStart := core.OnCommand("sync:start", 8)
	defer unsubStart()
	cancelCh, unsubCancel := core.OnCommand("sync:cancel", 8)
	defer unsubCancel()

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-startCh:
			req, ok := cmd.Payload.(intsync.Request)
			if !ok {
				logger.Warn("sync:start with unexpected payload", zap.Any("payload", cmd.Payload))
				continue
			}
			go func() {
				if err := orch.StartMultiSync(ctx, req); err != nil {
					logger.Warn("multi sync finished with errors", zap.Error(err))
				}
			}()
		case cmd := <-cancelCh:
			req, ok := cmd.Payload.(intsync.CancelRequest)
			if !ok {
				logger.Warn("sync:cancel with unexpected payload", zap.Any("payload", cmd.Payload))
				continue
			}
			if !orch.CancelSync(req.ChatID, req.Kind) {
				logger.Info("nothing to cancel",
					zap.Int64("chat_id", req.ChatID),
					zap.String("kind", req.Kind))
			}
		}
	}
}
