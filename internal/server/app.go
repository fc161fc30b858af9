// Package server initializes and runs the main application server. It wires
// the database, cache, object storage providers, the authorization gate, the
// upload coordinator, and the recurring lifecycle tasks, and handles graceful
// shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/fileforge/fileforge/internal/clockx"
	"github.com/fileforge/fileforge/internal/logging"
	"github.com/fileforge/fileforge/internal/server/cache"
	"github.com/fileforge/fileforge/internal/server/config"
	"github.com/fileforge/fileforge/internal/server/gate"
	"github.com/fileforge/fileforge/internal/server/httpapi"
	"github.com/fileforge/fileforge/internal/server/keys"
	"github.com/fileforge/fileforge/internal/server/lifecycle"
	"github.com/fileforge/fileforge/internal/server/media"
	"github.com/fileforge/fileforge/internal/server/objstore"
	"github.com/fileforge/fileforge/internal/server/repositories/repomanager"
	"github.com/fileforge/fileforge/internal/server/uploads"
	"github.com/fileforge/fileforge/internal/server/usagelog"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	recorder  *usagelog.Recorder
	sweeper   *lifecycle.Sweeper
	scheduler *lifecycle.Scheduler
	httpSrv   *httpapi.Server
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		return nil, fmt.Errorf("migration error: %w", err)
	}

	clock := clockx.NewReal()

	// A shared Redis keeps block status consistent across replicas; without
	// one the in-process cache still keeps a single instance correct.
	var c cache.Cache
	if cfg.RedisAddr != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("cache init error: %w", err)
		}
		c = rc
	} else {
		c = cache.NewMemory(clock)
	}

	km := keys.NewManager(db, rm, clock, logger, keys.Config{
		MaxActiveKeysStandard: cfg.MaxActiveKeysStandard,
		MaxActiveKeysElevated: cfg.MaxActiveKeysElevated,
	})

	recorder := usagelog.NewRecorder(db, rm, logger, cfg.UsageBufferSize)

	gateCfg := gate.DefaultConfig()
	gateCfg.BlockCooldown = cfg.BlockCooldownDuration
	gateCfg.SuspicionThreshold = cfg.SuspicionThreshold
	g := gate.New(db, rm, km, c, recorder, clock, logger, gateCfg)

	mainStore := objstore.NewS3Provider(objstore.S3Config{
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Endpoint:  cfg.S3BaseEndpoint,
		Bucket:    cfg.S3Bucket,
	})
	guestStore := objstore.NewS3Provider(objstore.S3Config{
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Endpoint:  cfg.S3BaseEndpoint,
		Bucket:    cfg.S3GuestBucket,
	})

	proc := media.NewProcessor()
	pool := media.NewPool(int64(cfg.MediaPoolSize))

	coord := uploads.NewCoordinator(db, rm, mainStore, guestStore, proc, pool, clock, logger, uploads.Config{
		SignValidity:   cfg.SignValidityDuration,
		GuestRetention: cfg.GuestRetentionDuration,
	})

	sweeper := lifecycle.NewSweeper(db, rm, guestStore, clock, logger, 0)

	scheduler := lifecycle.NewScheduler(logger)
	scheduler.Add(lifecycle.Task{
		Name:     "guest-upload-sweep",
		Interval: cfg.SweepInterval,
		Run: func(ctx context.Context) error {
			_, err := sweeper.SweepExpiredGuests(ctx)
			return err
		},
	})
	scheduler.Add(lifecycle.Task{
		Name:     "usage-purge",
		Interval: cfg.UsagePurgeInterval,
		Run: func(ctx context.Context) error {
			_, err := recorder.PurgeOlderThan(ctx, clock.Now().Add(-cfg.UsageRetentionDuration))
			return err
		},
	})

	httpSrv := httpapi.NewServer(cfg.EndpointAddrHTTP, g, km, coord, logger, []byte(cfg.SecretKey))

	return &App{
		config:    cfg,
		logger:    logger,
		db:        db,
		recorder:  recorder,
		sweeper:   sweeper,
		scheduler: scheduler,
		httpSrv:   httpSrv,
	}, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.httpSrv.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.recorder.Start()
	app.scheduler.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()
	app.scheduler.Wait()
	app.recorder.Close()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
}
