package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/k2riddim/linkedin-research-suite/internal/browser"
	"github.com/k2riddim/linkedin-research-suite/internal/config"
	"github.com/k2riddim/linkedin-research-suite/internal/eventbus"
	"github.com/k2riddim/linkedin-research-suite/internal/history"
	"github.com/k2riddim/linkedin-research-suite/internal/history/clickhouse"
	"github.com/k2riddim/linkedin-research-suite/internal/logger"
	"github.com/k2riddim/linkedin-research-suite/internal/logmux"
	"github.com/k2riddim/linkedin-research-suite/internal/metrics"
	"github.com/k2riddim/linkedin-research-suite/internal/registry"
	"github.com/k2riddim/linkedin-research-suite/internal/server"
	"github.com/k2riddim/linkedin-research-suite/internal/service"
	"github.com/k2riddim/linkedin-research-suite/internal/store/factory"
	"github.com/k2riddim/linkedin-research-suite/internal/supervisor"
)

func createUpCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Start and supervise the whole suite",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUp(flags.ConfigPath)
		},
	}
}

func runUp(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := logger.New(cfg.Log)
	slog.SetDefault(log)
	metrics.Register(prometheus.DefaultRegisterer)

	// Multiplexed child output: console always, rotating file when configured.
	fileW := logger.Config{
		Path:       cfg.ProcessLog.Path,
		MaxSizeMB:  cfg.ProcessLog.MaxSizeMB,
		MaxBackups: cfg.ProcessLog.MaxBackups,
		MaxAgeDays: cfg.ProcessLog.MaxAgeDays,
		Compress:   cfg.ProcessLog.Compress,
	}.FileWriter()
	mux := logmux.New(fileW, os.Stdout)

	// Lifecycle history: persistent store plus optional analytics sink.
	var sinks []history.Sink
	if cfg.Store.DSN != "" {
		st, err := factory.NewFromDSN(cfg.Store.DSN)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer func() { _ = st.Close() }()
		if err := st.EnsureSchema(context.Background()); err != nil {
			return fmt.Errorf("store schema: %w", err)
		}
		sinks = append(sinks, history.StoreSink{St: st})
	}
	if cfg.History.ClickhouseDSN != "" {
		table := cfg.History.Table
		if table == "" {
			table = "suite_history"
		}
		ch, err := clickhouse.New(cfg.History.ClickhouseDSN, table)
		if err != nil {
			log.Warn("clickhouse sink unavailable, continuing without it", "error", err)
		} else {
			defer func() { _ = ch.Close() }()
			if err := ch.EnsureSchema(context.Background()); err != nil {
				log.Warn("clickhouse schema setup failed", "error", err)
			} else {
				sinks = append(sinks, ch)
			}
		}
	}
	fan := history.NewFanout(log, sinks...)
	bus := eventbus.New(log)

	// Credentials and global env flow into every service and session.
	globalEnv, err := cfg.GlobalEnv()
	if err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	specs := make([]service.Spec, len(cfg.Services))
	for i, sp := range cfg.Services {
		sp.Env = append(append([]string{}, globalEnv...), sp.Env...)
		specs[i] = sp
	}

	sup, err := supervisor.New(specs, mux, log, cfg.Lifecycle.Options(),
		supervisor.WithTransitionHook(func(name string, state supervisor.State) {
			bus.Publish("service_state", map[string]any{"service": name, "state": string(state)})
			_ = fan.Send(context.Background(), history.Event{
				Type:       history.EventServiceState,
				OccurredAt: time.Now(),
				Name:       name,
				State:      string(state),
			})
		}))
	if err != nil {
		return err
	}

	creds, err := browser.CredentialsFromEnv()
	if err != nil {
		return fmt.Errorf("read provider credentials: %w", err)
	}
	providerURL := cfg.Sessions.ProviderURL
	if providerURL == "" {
		providerURL = "http://127.0.0.1:8081"
	}
	reg := registry.New(browser.NewClient(providerURL, cfg.Sessions.RequestTimeout), log,
		registry.WithDefaultCredentials(creds),
		registry.WithNotifier(func(event string, fields map[string]any) {
			bus.Publish(event, fields)
			typ := history.EventSessionCreated
			state := "created"
			if event == "session_closed" {
				typ = history.EventSessionClosed
				state = "closed"
			} else if event != "session_created" {
				return
			}
			name, _ := fields["session_id"].(string)
			_ = fan.Send(context.Background(), history.Event{
				Type:       typ,
				OccurredAt: time.Now(),
				Name:       name,
				State:      state,
			})
		}))
	if cfg.Sessions.SweepInterval > 0 && cfg.Sessions.MaxIdle > 0 {
		reg.StartSweeper(cfg.Sessions.SweepInterval, cfg.Sessions.MaxIdle)
	}

	router := server.NewRouter(sup, reg, cfg.Server.BasePath).WithEvents(bus.Handler())
	srv := server.NewServer(cfg.Server.Listen, router)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	if err := sup.Start(context.Background()); err != nil {
		return err
	}
	log.Info("suite is up", "listen", cfg.Server.Listen, "services", len(specs))

	sig := <-sigs
	log.Info("signal received, shutting down", "signal", sig.String())

	// Sessions first so the automation service can still honor closes, then
	// the API server, then the services themselves.
	reg.StopSweeper()
	sum := reg.ShutdownCleanup(cfg.Sessions.ShutdownBudget)
	log.Info("session cleanup", "total", sum.Total, "succeeded", sum.Succeeded, "failed", sum.Failed)
	bus.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	_ = srv.Shutdown(shutdownCtx)
	cancel()
	sup.Shutdown(0)
	return nil
}
