package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"plcdash-server/internal/config"
	httpapi "plcdash-server/internal/httpapi"
	dashboard "plcdash-server/internal/modules/dashboard"
	"plcdash-server/internal/modules/dashboard/fetcher"
	"plcdash-server/internal/modules/dashboard/repository"
	"plcdash-server/internal/modules/dashboard/service"
	"plcdash-server/internal/modules/dashboard/source"
	dashboardviews "plcdash-server/internal/modules/dashboard/views"
	"plcdash-server/internal/mqtt"
	"plcdash-server/internal/sse"
)

func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("config loaded",
		"appEnv", cfg.AppEnv,
		"logLevel", cfg.LogLevel.String(),
		"httpAddr", cfg.HTTPAddr,
		"staticDir", cfg.StaticDir,
		"telemetryURL", cfg.TelemetryURL,
		"fetchTimeout", cfg.FetchTimeout,
		"pollInterval", cfg.PollInterval,
		"refreshMode", cfg.RefreshMode,
		"historyCapacity", cfg.HistoryCapacity,
		"tableSize", cfg.TableSize,
		"mqttEnabled", cfg.MQTTEnabled,
		"mqttBroker", cfg.MQTTBroker,
		"mqttPort", cfg.MQTTPort,
		"mqttTopic", cfg.MQTTTopic,
	)

	if err := dashboardviews.LoadTemplates(); err != nil {
		return fmt.Errorf("load templates: %w", err)
	}

	logger := slog.Default()
	history := repository.NewRepository(cfg.HistoryCapacity)
	src := source.NewHTTPSource(cfg.TelemetryURL, cfg.FetchTimeout)
	svc := service.NewService(fetcher.New(src, history, logger), history, service.Options{
		Mode:      service.Mode(cfg.RefreshMode),
		Interval:  cfg.PollInterval,
		TableSize: cfg.TableSize,
	}, logger)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	hub := sse.NewHub(sse.DefaultHeartbeat, logger)
	service.RegisterBroadcast(svc, hub, logger)

	var publisher *mqtt.Publisher
	if cfg.MQTTEnabled {
		publisher = mqtt.NewPublisher(cfg, logger)
		// Short connect timeout so a missing broker does not block startup.
		connectCtx, connectCancel := context.WithTimeout(ctx, 5*time.Second)
		err := publisher.Connect(connectCtx)
		connectCancel()
		if err != nil {
			slog.Warn("mqtt connection failed (continuing, client keeps reconnecting)", "error", err)
		}
		service.RegisterMQTTRelay(runCtx, svc, publisher, logger)
	}

	mux := httpapi.NewMux(svc, cfg.StaticDir)
	dashboard.RegisterFeature(mux, svc, hub, cfg.PollInterval)

	pollDone := make(chan struct{})
	if svc.Mode() == service.ModePoller {
		go func() {
			defer close(pollDone)
			_ = svc.Run(runCtx)
		}()
	} else {
		close(pollDone)
	}

	srv := httpapi.NewServer(cfg, mux)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cancelRun()
	<-pollDone

	slog.Info("sse closing", "clients", hub.Clients())
	hub.Close()

	if publisher != nil {
		slog.Info("mqtt disconnecting")
		publisher.Disconnect()
	}

	if serveErr != nil {
		if errors.Is(serveErr, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", serveErr)
	}

	slog.Info("http shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	err := <-errCh
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return ctx.Err()
}
