package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinicq/internal/api"
	"clinicq/internal/booking"
	"clinicq/internal/checkin"
	"clinicq/internal/config"
	"clinicq/internal/database"
	"clinicq/internal/domain"
	"clinicq/internal/events"
	"clinicq/internal/logging"
	"clinicq/internal/metrics"
	"clinicq/internal/models"
	"clinicq/internal/queue"
	"clinicq/internal/repository"
	"clinicq/internal/service"
	"clinicq/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"
)

const (
	stateTTL     = 24 * time.Hour
	demoDoctorID = 1
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	demo, err := loadDemoDoctors(logger)
	if err != nil {
		return err
	}

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := repository.NewAppState(initStateRepository(redisClient, logger), cfg.Redis.KeyPrefix)
	bus := events.NewEventBus()
	loc := cfg.ClinicLocation()

	finance := service.NewFinanceService(db, db, service.FinanceOptions{
		ConsultationFee:         cfg.Clinic.ConsultationFee,
		CreditExpiryWorkingDays: cfg.Clinic.CreditExpiryWorkingDays,
		Location:                loc,
		ExportPath:              cfg.Exports.Path,
	}, logger)

	fees := worker.NewFeeWorker(db, finance, redisClient, worker.RetryPolicy{
		MaxRetries:    cfg.Worker.MaxRetries,
		InitialDelay:  cfg.Worker.InitialDelay,
		MaxDelay:      cfg.Worker.MaxDelay,
		BackoffFactor: cfg.Worker.BackoffFactor,
	}, cfg.Worker.PollInterval, cfg.Redis.KeyPrefix, logger)

	doctors := service.NewDoctorService(db, state, demo, demoDoctorID, loc, logger)

	tokens, err := newTokenSource(cfg, state)
	if err != nil {
		return err
	}
	selector := booking.NewSelector(state, db, tokens, doctors, bus, booking.Options{
		Slots:      cfg.Clinic.TimeSlots,
		WindowDays: cfg.Clinic.BookingWindowDays,
		Location:   loc,
	}, logger)

	live := queue.NewLiveQueue(queue.Options{
		StartingToken:     cfg.Queue.StartingToken,
		LateArrivalCharge: cfg.Clinic.LateArrivalCharge,
	}, bus, fees, state, logging.Component(logger, "queue"))
	defer queue.EnrollBookings(ctx, bus, live, db, logger)()
	defer queue.FlagLateCheckIns(bus, live)()

	checkins := checkin.NewManager(state, checkin.Config{
		GracePeriodSeconds: cfg.Clinic.GracePeriodSeconds,
		LateFee:            cfg.Clinic.LateFee,
		Location:           loc,
	}, fees, bus, logger)
	defer checkins.Shutdown()

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Patients: service.NewPatientService(db, state, logger),
		Selector: selector,
		Bookings: state,
		History:  db,
		Tracker: queue.NewTracker(state, live, queue.Params{
			AverageMinutesPerPatient: cfg.Clinic.AverageMinutesPerPatient,
			TravelTimeMinutes:        cfg.Clinic.TravelTimeMinutes,
		}),
		CheckIns: checkins,
		Queue:    live,
		Doctors:  doctors,
		Finance:  finance,
		Vitals:   service.NewVitalsService(db),
		Health:   db.PingContext,
	}, logger)

	startMetrics(ctx, cfg, logger)
	startBackground(ctx, cfg, db, fees, live, logger)

	return startServer(ctx, httpServer, logger)
}

func loadConfigAndLogger() (*config.Config, *zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logging.Component(baseLogger, "main"), closer, nil
}

// loadDemoDoctors reads the fallback clinic profiles shown when the doctor
// table is empty or unreachable. A missing file just means no fallback.
func loadDemoDoctors(logger *zerolog.Logger) ([]models.Doctor, error) {
	demoPath := os.Getenv("DEMO_PATH")
	if demoPath == "" {
		demoPath = "configs/demo.yaml"
	}
	data, err := os.ReadFile(demoPath)
	if errors.Is(err, os.ErrNotExist) {
		logger.Warn().Str("demo_path", demoPath).Msg("demo data not found, clinic details have no fallback")
		return nil, nil
	}
	if err != nil {
		logger.Error().Err(err).Str("demo_path", demoPath).Msg("read demo data")
		return nil, err
	}

	var demo struct {
		Doctors []models.Doctor `yaml:"doctors"`
	}
	if err := yaml.Unmarshal(data, &demo); err != nil {
		logger.Error().Err(err).Str("demo_path", demoPath).Msg("parse demo data")
		return nil, err
	}
	return demo.Doctors, nil
}

func initRedis(cfg *config.Config, logger *zerolog.Logger) *redis.Client {
	if cfg.Redis.Address == "" {
		return nil
	}

	redisClient := repository.NewRedisClient(cfg.Redis)
	if err := repository.Ping(context.Background(), redisClient); err != nil {
		logger.Warn().Err(err).Msg("redis connection failed, continuing without redis")
		_ = redisClient.Close()
		return nil
	}

	logger.Info().Str("addr", cfg.Redis.Address).Msg("redis connected")
	return redisClient
}

// initStateRepository prefers Redis and falls back to process memory while
// Redis is unreachable.
func initStateRepository(redisClient *redis.Client, logger *zerolog.Logger) domain.StateRepository {
	memory := repository.NewMemoryStateRepository(stateTTL)
	if redisClient == nil {
		return memory
	}
	primary := repository.NewRedisStateRepository(redisClient, stateTTL)
	return repository.NewFailoverStateRepository(primary, memory, logging.Component(logger, "state"))
}

func newTokenSource(cfg *config.Config, counter booking.Counter) (booking.TokenSource, error) {
	if cfg.Queue.TokenStrategy == config.TokenStrategySequential {
		return booking.NewSequentialTokenSource(cfg.Clinic.TokenMin, cfg.Clinic.TokenMax, counter)
	}
	return booking.NewRandomTokenSource(cfg.Clinic.TokenMin, cfg.Clinic.TokenMax, nil)
}

func startBackground(
	ctx context.Context,
	cfg *config.Config,
	db *database.DB,
	fees *worker.FeeWorker,
	live *queue.LiveQueue,
	logger *zerolog.Logger,
) {
	go fees.Start(ctx)
	go database.NewBackupService(db, cfg.Backup, logging.Component(logger, "backup")).Start(ctx)

	if cfg.Queue.SimulateInterval > 0 {
		logger.Info().Dur("interval", cfg.Queue.SimulateInterval).Msg("serving token simulation enabled")
		go live.Simulate(ctx, cfg.Queue.SimulateInterval)
	}
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	go startMetricsServer(ctx, cfg.Monitoring.PrometheusPort, logger)
}

func startServer(ctx context.Context, httpServer *api.HTTPServer, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Start()
	}()

	logger.Info().Str("http_addr", httpServer.Addr()).Msg("clinic queue server started")

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)

	logger.Info().Msg("clinic queue server stopped")
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
