// Copyright (c) 2025 Meterflow Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/meterflow/meterflow"
	v1 "github.com/meterflow/meterflow/api/v1"
	"github.com/meterflow/meterflow/config"
	"github.com/meterflow/meterflow/i18n"
	"github.com/meterflow/meterflow/internal/socket"
	"github.com/meterflow/meterflow/rest"
	"github.com/meterflow/meterflow/storage"
	"github.com/meterflow/meterflow/storage/httpapi"
	"github.com/meterflow/meterflow/storage/memory"
	"github.com/meterflow/meterflow/supervisor"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sys/unix"
)

// Config is the full service configuration.
type Config struct {
	Logging  LoggingConfig  `config:"logging"`
	API      APIConfig      `config:"api"`
	Database storage.Config `config:"database"`
}

// LoggingConfig configures the service wide logger.
type LoggingConfig struct {
	Level slog.Level `config:"level"`
}

// APIConfig configures the listening socket and the worker pool
// serving it.
type APIConfig struct {
	socket.Config `config:",squash"`

	Workers        int `config:"workers"`
	ThreadPoolSize int `config:"thread_pool_size"`
}

const (
	defaultHost           = "0.0.0.0"
	defaultPort           = 8888
	defaultBacklog        = 4096
	defaultConnection     = "memory://"
	defaultThreadPoolSize = supervisor.DefaultThreadPoolSize
)

func (cfg Config) withDefaults() Config {
	if cfg.API.Host == "" {
		cfg.API.Host = defaultHost
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = defaultPort
	}
	if cfg.API.Backlog == 0 {
		cfg.API.Backlog = defaultBacklog
	}
	if cfg.API.ThreadPoolSize <= 0 {
		cfg.API.ThreadPoolSize = defaultThreadPoolSize
	}
	if cfg.Database.Connection == "" {
		cfg.Database.Connection = defaultConnection
	}
	return cfg
}

// Builder returns the [meterflow.AppBuilder] assembling the service
// from its unmarshalled config. configPath, when non-empty, is watched
// for changes; a change drains the worker pool exactly like a SIGHUP
// so the service restarts with the new config under its supervisor.
func Builder(configPath string) meterflow.AppBuilder[Config] {
	return meterflow.AppBuilderFunc[Config](func(ctx context.Context, cfg Config) (meterflow.App, error) {
		cfg = cfg.withDefaults()

		log := newLogger(cfg.Logging)
		return &runtime{
			cfg:        cfg,
			configPath: configPath,
			log:        log,
			handler:    newHandler(cfg, log),
		}, nil
	})
}

func newLogger(cfg LoggingConfig) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Level,
	}))
}

func newRegistry(log *slog.Logger) *storage.Registry {
	reg := storage.NewRegistry()
	memory.New().Register(reg)
	httpapi.New(httpapi.LogHandler(log.Handler())).Register(reg)
	return reg
}

// newHandler assembles the full request pipeline: route table, dispatch
// triads, middleware chain and the outer tracing handler.
func newHandler(cfg Config, log *slog.Logger) http.Handler {
	cat := i18n.NewCatalog(nil, nil)
	reg := newRegistry(log)

	resource := v1.NewMetricsResource(
		rest.WithCatalog(cat),
		rest.LogHandler(log.Handler()),
	)
	handler := rest.Chain(
		resource,
		rest.Logging(log),
		rest.AttachStorage(reg, cfg.Database),
	)

	router := rest.NewRouter(cat, rest.RouterLogHandler(log.Handler()))
	v1.Register(router, handler)

	return otelhttp.NewHandler(router, "meterflow")
}

// runtime is the meterflow.App serving the API. In the parent it binds
// the socket and runs the worker supervisor; in a spawned worker it
// serves over the inherited socket instead.
type runtime struct {
	cfg        Config
	configPath string
	log        *slog.Logger
	handler    http.Handler
}

// Run implements the [meterflow.App] interface.
func (rt *runtime) Run(ctx context.Context) error {
	if supervisor.IsWorker() {
		return supervisor.ServeWorker(ctx, rt.handler, supervisor.WorkerConfig{
			Socket:         rt.cfg.API.Config,
			ThreadPoolSize: rt.cfg.API.ThreadPoolSize,
		}, rt.log)
	}

	ls, err := socket.Bind(ctx, rt.cfg.API.Config)
	if err != nil {
		return err
	}
	if rt.cfg.API.Workers == 0 {
		// no workers to hand the raw socket to, so TLS is applied here
		ls, err = socket.WrapTLS(ls, rt.cfg.API.Config)
		if err != nil {
			return err
		}
	}

	rt.watchConfig(ctx)

	// workers re-read the same config file, so the path travels with them
	spawnArgs := []string{"worker"}
	if rt.configPath != "" {
		spawnArgs = append(spawnArgs, "--config", rt.configPath)
	}
	sup := supervisor.New(ls, rt.handler, supervisor.Config{
		Workers:        rt.cfg.API.Workers,
		ThreadPoolSize: rt.cfg.API.ThreadPoolSize,
	},
		supervisor.LogHandler(rt.log.Handler()),
		supervisor.WithSpawnFunc(supervisor.ExecSpawner(ls, spawnArgs...)),
	)

	rt.log.Info("serving api", slog.String("addr", rt.cfg.API.Addr()))
	return sup.Run(ctx)
}

// watchConfig reuses the SIGHUP drain path for config file changes.
func (rt *runtime) watchConfig(ctx context.Context) {
	if rt.configPath == "" {
		return
	}

	go func() {
		err := config.Watch(ctx, rt.log, rt.configPath, func() {
			serr := unix.Kill(os.Getpid(), unix.SIGHUP)
			if serr != nil {
				rt.log.Error("failed to trigger drain", slog.Any("error", serr))
			}
		})
		if err != nil {
			rt.log.Error("config watch stopped", slog.Any("error", err))
		}
	}()
}

// UpgradeSchema opens the configured backend and migrates its schema
// to the current version.
func UpgradeSchema(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	log := newLogger(cfg.Logging)

	conn, err := newRegistry(log).Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.Upgrade(ctx)
}

// PurgeExpired opens the configured backend and removes samples older
// than the configured time to live. A non-positive time to live keeps
// samples forever, so nothing is purged.
func PurgeExpired(ctx context.Context, cfg Config) error {
	cfg = cfg.withDefaults()
	log := newLogger(cfg.Logging)

	if cfg.Database.TimeToLive <= 0 {
		log.Info("time to live is not set, nothing to purge")
		return nil
	}

	conn, err := newRegistry(log).Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer conn.Close()

	return conn.PurgeExpired(ctx, cfg.Database.TimeToLive)
}
