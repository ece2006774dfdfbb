package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/junbin-yang/go-fsmkit/internal/hooks"
	"github.com/junbin-yang/go-fsmkit/internal/host"
	"github.com/junbin-yang/go-fsmkit/internal/server"
	"github.com/junbin-yang/go-fsmkit/pkg/config"
	"github.com/junbin-yang/go-fsmkit/pkg/logger"
	"github.com/junbin-yang/go-fsmkit/pkg/metrics"
	"github.com/junbin-yang/go-fsmkit/pkg/statemachine"
	"github.com/junbin-yang/go-fsmkit/pkg/store"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the machines of a definition file over HTTP",
		Long:  `Loads the serve configuration, builds every machine in the definitions file, restores saved snapshots and serves the HTTP API until interrupted.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context(), configPath)
			if err != nil {
				return err
			}
			return rt.run(cmd.Context())
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./fsm.yml, <exec dir>/fsm.yml, /etc/fsm/fsm.yml)")
	return cmd
}

// runtime serve 命令的全部组件
type runtime struct {
	cfg       *ServeConfig
	log       *logger.ZapLogger
	store     store.Store
	persister *store.Persister
	collector *metrics.Collector
	exec      *statemachine.Executor
	defs      *config.ConfigManager
	server    *server.Server
}

func newRuntime(ctx context.Context, configPath string) (*runtime, error) {
	cfg, defsPath, err := loadServeConfig(configPath)
	if err != nil {
		return nil, err
	}
	log, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}
	logger.ReplaceDefault(log)

	st, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}
	collector, registry, err := buildMetrics(cfg)
	if err != nil {
		st.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:       cfg,
		log:       log,
		store:     st,
		persister: store.NewPersister(st, store.WithPersisterLogger(log)),
		collector: collector,
		exec: statemachine.NewExecutor(
			statemachine.WithWorkers(cfg.Async.Workers),
			statemachine.WithQueueSize(cfg.Async.QueueSize),
			statemachine.WithPanicHandler(func(r interface{}) {
				log.Error("async hook panic", logger.Any("panic", r))
			}),
		),
	}

	rt.defs = config.NewConfigManager(&statemachine.Document{},
		config.WithLogger(log),
		config.WithConfigWatch(cfg.Watch, 500*time.Millisecond),
	)
	if err := rt.defs.LoadConfig(defsPath); err != nil {
		rt.close()
		return nil, fmt.Errorf("definitions: %w", err)
	}
	current, err := rt.defs.GetConfig()
	if err != nil {
		rt.close()
		return nil, err
	}
	g, err := rt.buildGroup(current.(*statemachine.Document))
	if err != nil {
		rt.close()
		return nil, err
	}
	rt.persister.Bind(g)
	if _, err := rt.persister.RestoreAll(ctx); err != nil {
		rt.close()
		return nil, fmt.Errorf("restore snapshots: %w", err)
	}

	opts := []server.Option{server.WithLogger(log)}
	if registry != nil {
		opts = append(opts, server.WithMetrics(cfg.Metrics.Path, metrics.Handler(registry)))
	}
	rt.server = server.New(g, opts...)
	rt.defs.OnChange(rt.reload)
	return rt, nil
}

func (rt *runtime) buildGroup(doc *statemachine.Document) (*statemachine.Group, error) {
	opts := []statemachine.Option{
		statemachine.WithLogger(rt.log),
		statemachine.WithHistory(rt.cfg.History),
		statemachine.WithObserver(rt.persister),
	}
	if rt.collector != nil {
		opts = append(opts, statemachine.WithObserver(rt.collector))
	}
	return statemachine.BuildGroup(doc, hooks.New(rt.log, hooks.WithExecutor(rt.exec)), opts...)
}

// reload 定义文件变更：重建分组并从存储恢复状态，失败时继续使用旧分组
func (rt *runtime) reload(_, updated interface{}) {
	doc, ok := updated.(*statemachine.Document)
	if !ok {
		return
	}
	g, err := rt.buildGroup(doc)
	if err != nil {
		rt.log.Error("definitions reload rejected", logger.Err(err))
		return
	}

	old := rt.server.Group()
	if cancelled := old.CancelAll(); len(cancelled) > 0 {
		rt.log.Warn("pending transitions cancelled by reload", logger.Strings("machines", cancelled))
	}

	rt.persister.Bind(g)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	restored, err := rt.persister.RestoreAll(ctx)
	if err != nil {
		rt.log.Warn("restore after reload failed", logger.Err(err))
	}
	rt.server.SetGroup(g)
	rt.log.Info("definitions reloaded",
		logger.Strings("machines", g.Names()),
		logger.Int("restored", len(restored)),
	)
}

func (rt *runtime) run(ctx context.Context) error {
	h := host.New(
		host.WithLogger(rt.log),
		host.WithShutdownTimeout(rt.cfg.Server.ShutdownTimeout),
	)

	srv := &http.Server{
		Addr:              rt.cfg.Server.Listen,
		Handler:           rt.server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	err := h.Add("http", func(ctx context.Context) error {
		ln, err := net.Listen("tcp", srv.Addr)
		if err != nil {
			return err
		}
		rt.log.Info("http listening", logger.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}, func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})
	if err != nil {
		return err
	}

	h.OnShutdown(func(ctx context.Context) error {
		rt.server.Group().CancelAll()
		rt.close()
		return nil
	})
	h.OnTimeout(func(ctx context.Context) error {
		rt.log.Warn("shutdown timed out")
		rt.close()
		return nil
	})
	return h.Run(ctx)
}

// close 停止执行器，释放配置监听与存储，刷新日志
func (rt *runtime) close() {
	if rt.defs != nil {
		rt.defs.Close()
	}
	ctx, cancel := context.WithTimeout(context.Background(), rt.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := rt.exec.Close(ctx); err != nil {
		rt.log.Warn("async executor did not drain", logger.Err(err))
	}
	if err := rt.store.Close(); err != nil {
		rt.log.Warn("store close failed", logger.Err(err))
	}
	_ = rt.log.Sync()
}
