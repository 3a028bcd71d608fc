package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	levelAuth "github.com/MrEthical07/levelAuth"
	"github.com/MrEthical07/levelAuth/audit/influx"
	"github.com/MrEthical07/levelAuth/internal/config"
	"github.com/MrEthical07/levelAuth/internal/logging"
	"github.com/MrEthical07/levelAuth/mail/mqtt"
	"github.com/MrEthical07/levelAuth/metrics/export/prometheus"
	"github.com/MrEthical07/levelAuth/server"
	"github.com/MrEthical07/levelAuth/store/sqlite"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	configPath  string
	dev         bool
	devPassword string
}

func newServeCommand() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP auth server",
		Long: `Run the HTTP auth server.

Configuration is read from the YAML file given with --config, then overridden
by LEVELAUTH_* environment variables. Without --config the built-in defaults
are used, so at least LEVELAUTH_SESSION_SECRET must be set.

With --dev the file is ignored: redis is replaced by an in-process server, the
database lives in a temporary directory, a random signing secret is generated
and a verified level-3 account "root" is created.

Examples:
  levelauth serve --config /etc/levelauth/config.yaml
  levelauth serve --dev --dev-password hunter22`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "path to the YAML config file")
	cmd.Flags().BoolVar(&opts.dev, "dev", false, "run self-contained with in-process redis and a seeded root account")
	cmd.Flags().StringVar(&opts.devPassword, "dev-password", "root-password", "password of the seeded root account in --dev mode")
	return cmd
}

// runtime collects everything serve opens so it can be released in reverse.
type runtime struct {
	closers []func()
}

func (r *runtime) onClose(f func()) { r.closers = append(r.closers, f) }

func (r *runtime) close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadServeConfig(opts)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Logging, Version)
	logger.Info("starting levelauth", "addr", cfg.Server.Addr, "base_path", cfg.Server.BasePath, "dev", opts.dev)

	rt := &runtime{}
	defer rt.close()

	rdb, err := openRedis(rt, cfg.Redis, opts.dev, logger)
	if err != nil {
		return err
	}

	store, err := sqlite.Open(ctx, sqlite.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}
	rt.onClose(func() { _ = store.Close() })
	logger.Info("user store ready", "path", store.Path())

	builder := levelAuth.New().
		WithConfig(cfg.Engine()).
		WithRedis(rdb).
		WithUserStore(store).
		WithLogger(logger.Logger)

	if cfg.MQTT.Broker != "" {
		mailer, err := mqtt.Dial(mqtt.Config{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			Username:    cfg.MQTT.Username,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			QoS:         byte(cfg.MQTT.QoS),
		})
		if err != nil {
			return fmt.Errorf("connecting mail broker: %w", err)
		}
		rt.onClose(mailer.Close)
		builder = builder.WithMailer(mailer)
		logger.Info("mail jobs published over mqtt", "broker", cfg.MQTT.Broker)
	} else {
		logger.Warn("no mqtt broker configured, mail is written to the log")
	}

	var sinks levelAuth.MultiSink
	if cfg.Logging.Audit {
		sinks = append(sinks, levelAuth.SlogSink{Logger: logger.Logger.With("component", "audit")})
	}
	if cfg.InfluxDB.Enabled {
		sink, err := influx.Connect(ctx, influx.Config{
			Enabled:       true,
			URL:           cfg.InfluxDB.URL,
			Token:         cfg.InfluxDB.Token,
			Org:           cfg.InfluxDB.Org,
			Bucket:        cfg.InfluxDB.Bucket,
			BatchSize:     uint(cfg.InfluxDB.BatchSize),
			FlushInterval: time.Duration(cfg.InfluxDB.FlushInterval) * time.Second,
		})
		if err != nil {
			return fmt.Errorf("connecting audit sink: %w", err)
		}
		sink.SetOnError(func(err error) {
			logger.Warn("audit write failed", "error", err)
		})
		rt.onClose(sink.Close)
		sinks = append(sinks, sink)
	}
	if len(sinks) > 0 {
		builder = builder.WithAuditSink(sinks)
	}

	engine, err := builder.Build()
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}
	rt.onClose(engine.Close)

	if opts.dev {
		if err := seedRoot(ctx, store, engine, opts.devPassword); err != nil {
			return err
		}
		logger.Info("seeded dev account", "username", "root", "access_level", 3)
	}

	deps := server.Deps{
		Config:  cfg.Server,
		Engine:  engine,
		Logger:  logger,
		Version: Version,
		Checks: map[string]server.HealthCheck{
			"database": store.HealthCheck,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	}
	if cfg.Metrics.Enabled {
		deps.Metrics = prometheus.New(engine).Handler()
		deps.MetricsPath = cfg.Metrics.Path
	}

	srv, err := server.New(deps)
	if err != nil {
		return err
	}
	if err := srv.Start(ctx); err != nil {
		return err
	}
	logger.Info("listening", "addr", srv.Addr())

	<-ctx.Done()
	logger.Info("shutting down")
	if err := srv.Close(); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	return nil
}

func loadServeConfig(opts serveOptions) (*config.Config, error) {
	if !opts.dev {
		return config.Load(opts.configPath)
	}

	cfg := config.Default()
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating secret: %w", err)
	}
	cfg.Session.Secret = hex.EncodeToString(secret)
	cfg.Cookie.Secure = false
	cfg.Logging.Format = "text"
	cfg.Logging.Audit = true
	cfg.Metrics.LatencyHistograms = true

	dir, err := os.MkdirTemp("", "levelauth-dev-")
	if err != nil {
		return nil, fmt.Errorf("creating dev dir: %w", err)
	}
	cfg.Database.Path = filepath.Join(dir, "levelauth.db")
	return cfg, cfg.Validate()
}

func openRedis(rt *runtime, cfg config.RedisConfig, dev bool, logger *logging.Logger) (redis.UniversalClient, error) {
	addr, password := cfg.Addr, cfg.Password
	if dev {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("starting in-process redis: %w", err)
		}
		rt.onClose(mr.Close)
		addr, password = mr.Addr(), ""
		logger.Info("using in-process redis", "addr", addr)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       cfg.DB,
	})
	rt.onClose(func() { _ = client.Close() })
	return client, nil
}

func seedRoot(ctx context.Context, store *sqlite.Store, engine *levelAuth.Engine, pw string) error {
	hasher, err := hasherFor(engine.Config().Password)
	if err != nil {
		return err
	}
	hash, err := hasher.Hash(pw)
	if err != nil {
		return fmt.Errorf("hashing dev password: %w", err)
	}
	u, err := store.CreateUser(ctx, levelAuth.NewUser{
		ID:           "root",
		Name:         "Root",
		Surname:      "Account",
		Email:        "root@levelauth.local",
		Username:     "root",
		Mobile:       "0000000000",
		PasswordHash: hash,
		AccessLevel:  3,
	})
	if err != nil {
		return fmt.Errorf("seeding root account: %w", err)
	}
	return store.MarkVerified(ctx, u.ID)
}
