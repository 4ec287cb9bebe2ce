package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/logpatrol/logpatrol/internal/archive"
	"github.com/logpatrol/logpatrol/internal/config"
	"github.com/logpatrol/logpatrol/internal/health"
	"github.com/logpatrol/logpatrol/internal/logging"
	"github.com/logpatrol/logpatrol/internal/metrics"
	"github.com/logpatrol/logpatrol/internal/mirror"
	"github.com/logpatrol/logpatrol/internal/monitor"
	"github.com/logpatrol/logpatrol/internal/notify"
	"github.com/logpatrol/logpatrol/internal/offset"
	"github.com/logpatrol/logpatrol/internal/remote"
	"github.com/logpatrol/logpatrol/internal/server"
	"github.com/logpatrol/logpatrol/internal/session"
	"github.com/logpatrol/logpatrol/internal/shutdown"
	"github.com/logpatrol/logpatrol/internal/spool"
	"github.com/logpatrol/logpatrol/internal/tracing"
	"github.com/logpatrol/logpatrol/pkg/types"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	version    = "0.1.0"
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.SetGlobal(logger)

	logger.Info().Str("version", version).Msg("Starting logpatrol")

	ctx := context.Background()
	shut := shutdown.New(30*time.Second, logger)

	// Tracing
	tracingCfg := tracing.Config{}
	if cfg.Tracing != nil {
		tracingCfg = tracing.Config{
			Enabled:    cfg.Tracing.Enabled,
			Endpoint:   cfg.Tracing.Endpoint,
			SampleRate: cfg.Tracing.SampleRate,
		}
	}
	tracerProvider, err := tracing.NewProvider(ctx, tracingCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	shut.Register("tracing", tracerProvider.Shutdown)

	// Metrics
	collector := metrics.NewCollector()

	// Remote API client
	credentials := monitor.NewCredentialStore()
	client, err := remote.NewClient(remote.Config{
		BaseURL:        cfg.Remote.BaseURL,
		RequestTimeout: cfg.Remote.RequestTimeout,
		MaxRetries:     cfg.Remote.MaxRetries,
		InitialBackoff: cfg.Remote.InitialBackoff,
		MaxBackoff:     cfg.Remote.MaxBackoff,
		RatePerSecond:  cfg.Remote.RatePerSecond,
		RateBurst:      cfg.Remote.RateBurst,
		Collector:      collector,
	}, credentials, logger)
	if err != nil {
		return fmt.Errorf("failed to create API client: %w", err)
	}

	// Offset tracker
	tracker, err := offset.NewTracker(cfg.State.Dir, cfg.State.SaveInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to create offset tracker: %w", err)
	}
	if err := tracker.Load(); err != nil {
		logger.Warn().Err(err).Msg("Failed to load tracked positions, starting fresh")
	}
	tracker.Start()
	shut.Register("offset-tracker", func(context.Context) error {
		tracker.Stop()
		return nil
	})

	// Session store
	store := session.NewStore(session.Config{
		KillLogSize:     cfg.Session.KillLogSize,
		WindowRetention: cfg.Session.WindowRetention,
		SessionMaxIdle:  cfg.Session.SessionMaxIdle,
	})

	// Notification sink
	sink := notify.NewWebhookSink(notify.WebhookConfig{
		URLs:    cfg.Notify.Webhooks,
		Timeout: cfg.Notify.Timeout,
	})

	// Event mirrors
	mirrors, err := buildMirrors(cfg, logger)
	if err != nil {
		return err
	}
	if mirrors != nil {
		shut.Register("mirrors", func(context.Context) error {
			mirrors.Close()
			return nil
		})
	}

	// Raw delta archive
	var archiver *archive.S3Archiver
	if cfg.Archive != nil {
		archiver, err = archive.NewS3Archiver(ctx, archive.Config{
			Bucket:       cfg.Archive.Bucket,
			Region:       cfg.Archive.Region,
			Prefix:       cfg.Archive.Prefix,
			StorageClass: cfg.Archive.StorageClass,
			Compression:  archive.CompressionType(cfg.Archive.Compression),
			Endpoint:     cfg.Archive.Endpoint,
			UsePathStyle: cfg.Archive.UsePathStyle,
		})
		if err != nil {
			return fmt.Errorf("failed to create delta archiver: %w", err)
		}
	}

	// Unrecognized line spool
	var lineSpool *spool.Spool
	if cfg.Spool != nil && cfg.Spool.Enabled {
		lineSpool, err = spool.New(spool.Config{
			Dir:           cfg.Spool.Dir,
			MaxEntries:    cfg.Spool.MaxEntries,
			MaxAge:        cfg.Spool.MaxAge,
			FlushInterval: cfg.Spool.FlushInterval,
		})
		if err != nil {
			return fmt.Errorf("failed to create line spool: %w", err)
		}
		shut.Register("spool", func(context.Context) error {
			return lineSpool.Close()
		})
	}

	// Monitor manager
	manager, err := monitor.NewManager(monitor.ManagerConfig{
		Defaults: monitor.Config{
			LogDir:               cfg.Monitor.LogDir,
			Interval:             cfg.Monitor.Interval,
			InterFileDelay:       cfg.Monitor.InterFileDelay,
			MaxConsecutiveErrors: cfg.Monitor.MaxConsecutiveErrors,
			MaxFilesPerTick:      cfg.Monitor.MaxFilesPerTick,
		},
		Client:      client,
		Credentials: credentials,
		Tracker:     tracker,
		Store:       store,
		Sink:        sink,
		Mirrors:     mirrors,
		Archiver:    archiver,
		Spool:       lineSpool,
		Collector:   collector,
		Tracer:      tracerProvider.Tracer(),
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create monitor manager: %w", err)
	}
	shut.Register("monitors", func(context.Context) error {
		manager.Shutdown()
		return nil
	})

	// Services monitored from startup
	for _, svc := range cfg.Services {
		var overrides *monitor.Config
		if svc.LogDir != "" || svc.Interval != 0 {
			overrides = &monitor.Config{LogDir: svc.LogDir, Interval: svc.Interval}
		}
		if err := manager.StartMonitoring(svc.ServiceID, svc.Token, buildFeeds(svc.Feeds, cfg.Notify.DefaultCooldown), overrides); err != nil {
			return fmt.Errorf("failed to start monitoring %s: %w", svc.ServiceID, err)
		}
	}

	// HTTP surfaces
	if srv := buildServer(cfg, collector, manager, logger); srv != nil {
		errCh := srv.Start()
		go func() {
			for err := range errCh {
				logger.Error().Err(err).Msg("HTTP server failed")
			}
		}()
		shut.Register("http", srv.Stop)
	}

	shut.Wait()
	return nil
}

func buildMirrors(cfg *config.Config, logger *logging.Logger) (*mirror.Multi, error) {
	if cfg.Mirrors == nil {
		return nil, nil
	}

	var mirrors []mirror.Mirror
	if k := cfg.Mirrors.Kafka; k != nil {
		kafkaMirror, err := mirror.NewKafkaMirror(mirror.KafkaConfig{
			Brokers:          k.Brokers,
			Topic:            k.Topic,
			CompressionCodec: k.CompressionCodec,
			RequiredAcks:     k.RequiredAcks,
			ClientID:         k.ClientID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka mirror: %w", err)
		}
		mirrors = append(mirrors, kafkaMirror)
	}
	if e := cfg.Mirrors.Elasticsearch; e != nil {
		elasticMirror, err := mirror.NewElasticMirror(mirror.ElasticConfig{
			Addresses: e.Addresses,
			Index:     e.Index,
			Username:  e.Username,
			Password:  e.Password,
			APIKey:    e.APIKey,
			BatchSize: e.BatchSize,
			FlushMax:  e.FlushInterval,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Elasticsearch mirror: %w", err)
		}
		mirrors = append(mirrors, elasticMirror)
	}

	if len(mirrors) == 0 {
		return nil, nil
	}
	return mirror.NewMulti(logger, mirrors...), nil
}

func buildFeeds(configs []config.FeedConfig, defaultCooldown time.Duration) []notify.Feed {
	feeds := make([]notify.Feed, 0, len(configs))
	for _, fc := range configs {
		feed := notify.Feed{
			Category:    types.Category(fc.Category),
			Destination: fc.Destination,
			Template:    fc.Template,
			Cooldown:    fc.Cooldown,
		}
		if feed.Cooldown == 0 {
			feed.Cooldown = defaultCooldown
		}
		if fc.Severity != "" {
			// Validation already rejected unknown names.
			severity, _ := types.ParseSeverity(fc.Severity)
			feed.Severity = &severity
		}
		feeds = append(feeds, feed)
	}
	return feeds
}

func buildServer(cfg *config.Config, collector *metrics.Collector, manager *monitor.Manager, logger *logging.Logger) *server.Server {
	serverCfg := server.Config{
		Manager: manager,
		Logger:  logger,
	}

	if cfg.Metrics != nil && cfg.Metrics.Enabled {
		serverCfg.MetricsAddress = cfg.Metrics.Address
		serverCfg.MetricsPath = cfg.Metrics.Path
		serverCfg.MetricsRegistry = collector.Registry()
	}
	if cfg.Health != nil && cfg.Health.Enabled {
		checker := health.NewChecker(5 * time.Second)
		checker.Register("monitors", func(ctx context.Context) health.ComponentHealth {
			tripped := 0
			for _, status := range manager.Statuses() {
				if status.State == "tripped" {
					tripped++
				}
			}
			if tripped > 0 {
				return health.ComponentHealth{
					Status:  health.StatusDegraded,
					Message: fmt.Sprintf("%d monitor(s) tripped", tripped),
				}
			}
			return health.ComponentHealth{Status: health.StatusHealthy}
		})
		serverCfg.HealthAddress = cfg.Health.Address
		serverCfg.LivenessPath = cfg.Health.LivenessPath
		serverCfg.ReadinessPath = cfg.Health.ReadinessPath
		serverCfg.HealthChecker = checker
	}
	if cfg.Server != nil && cfg.Server.Enabled {
		serverCfg.AdminAddress = cfg.Server.Address
	}

	if serverCfg.MetricsAddress == "" && serverCfg.HealthAddress == "" && serverCfg.AdminAddress == "" {
		return nil
	}
	return server.New(serverCfg)
}
