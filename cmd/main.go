package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"printer_shutdown/internal/bridge"
	"printer_shutdown/internal/config"
	"printer_shutdown/internal/gateway"
	"printer_shutdown/internal/handlers"
	"printer_shutdown/internal/hardware"
	"printer_shutdown/internal/input"
	"printer_shutdown/internal/logger"
	"printer_shutdown/internal/network"
	"printer_shutdown/internal/repository"
	"printer_shutdown/internal/repository/db"
	"printer_shutdown/internal/server"
	"printer_shutdown/internal/service"
)

const shutdownGrace = 10 * time.Second

// @title                       Printer Shutdown API
// @version                     1.0
// @description                 Arms and disarms the printer shutdown watch and exposes its state, last printer status and event log.
// @BasePath                    /
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
// @description                 Type "Bearer" followed by a space and the JWT.
func main() {
	configPath := flag.String("config", "", "path to config file (default configs/config.yml)")
	flag.Parse()

	// load config before the logger so log.level applies from the first line
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(cfg.Log.Level)

	sqlDB, err := openDB(cfg.DB.Path)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := sqlDB.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	panel, err := openPanel(cfg.GPIO)
	if err != nil {
		log.Fatalw("failed to open gpio panel", "err", err, "chip", cfg.GPIO.Chip)
	}
	defer func() {
		if cerr := panel.Close(); cerr != nil {
			log.Errorw("failed to release gpio lines", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(sqlDB)
	monitor := network.NewMonitor(network.InterfaceSampler(cfg.Network.Interface), cfg.Network.PollInterval, log.Named("network"))
	httpClient := gateway.NewHTTPClient(cfg.Watch.PollTimeout)

	ctrl := service.NewController(
		service.ControllerConfig{
			CheckPeriod: cfg.Watch.CheckPeriod,
			BlinkPeriod: cfg.Network.BlinkPeriod,
		},
		service.ControllerDeps{
			Input:      input.New(panel, cfg.Watch.Debounce, log.Named("input")),
			Poller:     gateway.NewStatusPoller(cfg.StatusURL(), cfg.Watch.PollTimeout, httpClient),
			Power:      gateway.NewPowerSwitch(cfg.Power.OffURL, cfg.Watch.PollTimeout, httpClient),
			LEDs:       panel,
			StatusRepo: repos.StatusRepo,
			EventRepo:  repos.EventRepo,
			NetEvents:  monitor.Events(),
			Log:        log.Named("watch"),
		},
	)
	services := service.NewService(repos, ctrl, service.AuthConfig{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Auth.SigningKey == "" {
		log.Warnw("auth.signing_key is empty; operator API sign-in is disabled")
	}
	seedAdmin(ctx, services, cfg.Auth, log)

	var wg sync.WaitGroup
	start := func(fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
		}()
	}

	start(func() { monitor.Run(ctx) })
	start(func() { services.Watcher.Run(ctx, cfg.Watch.Tick) })

	if cfg.MQTT.Enabled {
		mq := bridge.NewPaho(services.Watch, services.Monitoring, bridge.Options{
			Broker:      cfg.MQTT.Broker,
			ClientID:    cfg.MQTT.ClientID,
			User:        cfg.MQTT.User,
			Password:    cfg.MQTT.Password,
			TopicPrefix: cfg.MQTT.TopicPrefix,
			PublishRate: cfg.MQTT.PublishRate,
		}, log.Named("mqtt"))
		start(func() {
			if err := mq.Run(ctx); err != nil {
				log.Errorw("mqtt bridge stopped", "err", err)
			}
		})
	}

	apiHandler := handlers.NewHandler(services, log.Named("http"), handlers.Options{AllowSignUp: cfg.Auth.AllowSignUp})
	srv := server.New(cfg.HTTP.Port, apiHandler.InitRoutes())
	runHTTPServer(srv, log)

	log.Infow("printer shutdown watch started",
		"status_url", cfg.StatusURL(),
		"power_off_url", cfg.Power.OffURL,
		"check_period", cfg.Watch.CheckPeriod,
		"gpio", cfg.GPIO.Enabled,
		"mqtt", cfg.MQTT.Enabled,
		"addr", srv.Addr(),
	)

	waitForShutdown(cancel, srv, log)
	wg.Wait()
}

// openDB initializes the SQLite database, falling back to a file next to the binary.
func openDB(path string) (*sql.DB, error) {
	if path == "" {
		path = "printer_shutdown.db"
	}
	return db.InitDB(path)
}

// openPanel returns the GPIO-backed panel, or an in-memory one when gpio is disabled.
func openPanel(cfg config.GPIOConfig) (hardware.Panel, error) {
	if !cfg.Enabled {
		return hardware.NewVirtualPanel(), nil
	}
	p, err := hardware.OpenGPIOPanel(hardware.GPIOConfig{
		Chip:            cfg.Chip,
		ButtonPin:       cfg.ButtonPin,
		ButtonActiveLow: cfg.ButtonActiveLow,
		ArmedLEDPin:     cfg.ArmedLEDPin,
		StatusLEDPin:    cfg.StatusLEDPin,
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// seedAdmin creates the configured operator account on first start.
func seedAdmin(ctx context.Context, services *service.Service, auth config.AuthConfig, log *logger.Logger) {
	if auth.AdminUser == "" {
		return
	}
	created, err := services.EnsureUser(ctx, auth.AdminUser, auth.AdminPassword)
	if err != nil {
		log.Errorw("failed to seed admin user", "username", auth.AdminUser, "err", err)
		return
	}
	if created {
		log.Infow("admin user created", "username", auth.AdminUser)
	}
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, log *logger.Logger) {
	go func() {
		if err := srv.Run(); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and performs graceful shutdown.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down...")

	// stop the control loop, monitor and bridge
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("server forced to shutdown", "err", err)
	}
}
