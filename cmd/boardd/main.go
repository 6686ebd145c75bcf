// boardd owns a keyboard controller and exposes it over MQTT and HTTP.
//
// Commands arriving on boardd/command/{board} or the REST API are serialised
// through the daemon package and recorded in an audit log. Board attach and
// detach events and key matrix changes are published back, recorded in
// SQLite and optionally written to InfluxDB.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	_ "github.com/nerrad567/boardd/migrations"

	"github.com/nerrad567/boardd/internal/api"
	"github.com/nerrad567/boardd/internal/audit"
	"github.com/nerrad567/boardd/internal/auth"
	"github.com/nerrad567/boardd/internal/board"
	"github.com/nerrad567/boardd/internal/bridge"
	"github.com/nerrad567/boardd/internal/daemon"
	"github.com/nerrad567/boardd/internal/device"
	"github.com/nerrad567/boardd/internal/infrastructure/config"
	"github.com/nerrad567/boardd/internal/infrastructure/database"
	"github.com/nerrad567/boardd/internal/infrastructure/influxdb"
	"github.com/nerrad567/boardd/internal/infrastructure/logging"
	"github.com/nerrad567/boardd/internal/infrastructure/mqtt"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

const (
	// shutdownTimeout bounds how long the worker may take to drain.
	shutdownTimeout = 10 * time.Second

	pruneInterval = time.Hour
)

// errNoBackend is returned when no device backend is configured.
var errNoBackend = errors.New("no device backend configured: enable daemon.dummy or pass --dummy")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run parses args, starts every component and blocks until ctx is cancelled.
func run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("boardd", pflag.ContinueOnError)
	flags.SetOutput(stdout)
	configPath := flags.StringP("config", "c", config.Path(), "path to config.yaml")
	dummy := flags.Bool("dummy", false, "use the in-memory device instead of hardware")
	showVersion := flags.Bool("version", false, "print version and exit")
	issueToken := flags.String("issue-token", "", "print an API token for `subject` and exit")
	role := flags.String("role", string(auth.RoleOperator), "role of the issued token (viewer, operator, admin)")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing flags: %w", err)
	}

	if *showVersion {
		fmt.Fprintf(stdout, "boardd %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.Default()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if *dummy {
		cfg.Daemon.Dummy.Enabled = true
	}

	if *issueToken != "" {
		return printToken(stdout, cfg.Security.JWT, *issueToken, *role)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("starting boardd",
		"version", version,
		"commit", commit,
		"build_date", date,
		"config", *configPath,
	)

	dev, err := newDevice(cfg.Daemon)
	if err != nil {
		return err
	}

	// History (optional)
	var history bridge.History
	var historyReader api.HistoryReader
	var auditRepo *audit.SQLiteRepository
	if cfg.Database.Enabled {
		db, err := openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			log.Info("closing database")
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()

		repo := device.NewSQLiteHistoryRepository(db.DB)
		auditRepo = audit.NewSQLiteRepository(db.DB)
		if retention := cfg.Database.HistoryRetention; retention > 0 {
			go prune(ctx, "board_history", retention, repo.PruneHistory, log.Component("history"))
			go prune(ctx, "audit_logs", retention, auditRepo.Prune, log.Component("audit"))
		}
		history = repo
		historyReader = repo
	} else {
		log.Info("database disabled, board history and audit will not be recorded")
	}

	// Metrics (optional)
	var metrics bridge.MetricsWriter
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		return fmt.Errorf("connecting to InfluxDB: %w", err)
	default:
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		metrics = influxClient
	}

	// The API server needs the daemon client, so its handlers are attached
	// after daemon.New. It is read from the dispatcher and board goroutines.
	var apiServer atomic.Pointer[api.Server]
	bridgeEvent := func(ev daemon.Event) {
		log.Info("board "+ev.Kind.String(), "board", ev.BoardID)
	}
	var bridgeMatrix board.MatrixHandler
	onEvent := func(ev daemon.Event) {
		bridgeEvent(ev)
		if srv := apiServer.Load(); srv != nil {
			srv.HandleEvent(ev)
		}
	}
	onMatrix := func(id daemon.BoardID, m daemon.Matrix) {
		if bridgeMatrix != nil {
			bridgeMatrix(id, m)
		}
		if srv := apiServer.Load(); srv != nil {
			srv.HandleMatrix(id, m)
		}
	}

	// MQTT bridge (optional)
	var br *bridge.Bridge
	if cfg.Bridge.Enabled {
		mqttClient, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.Component("mqtt"))
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		br, err = bridge.NewBridge(bridge.Options{
			ID:             cfg.Bridge.ID,
			Version:        version,
			MQTTClient:     mqttClient,
			Metrics:        metrics,
			History:        history,
			Audit:          auditRecorder(auditRepo),
			Logger:         log.Component("bridge"),
			CommandTimeout: cfg.Daemon.CommandTimeout,
			HealthInterval: cfg.Bridge.HealthInterval,
		})
		if err != nil {
			return fmt.Errorf("creating bridge: %w", err)
		}
		bridgeEvent = br.HandleEvent
		bridgeMatrix = br.HandleMatrix
	} else {
		log.Info("MQTT bridge disabled")
	}

	client, err := daemon.New(daemon.Options{
		Daemon: dev,
		Factory: board.NewFactory(board.Options{
			OnMatrix: onMatrix,
			Logger:   log.Component("board"),
		}),
		OnEvent:      onEvent,
		Logger:       log.Component("daemon"),
		IdleInterval: cfg.Daemon.IdleInterval,
		PollRate:     cfg.Daemon.PollRate,
	})
	if err != nil {
		return fmt.Errorf("starting daemon: %w", err)
	}
	defer stopDaemon(client, log)

	if br != nil {
		br.SetController(client)
		if err := br.Start(ctx); err != nil {
			return fmt.Errorf("starting bridge: %w", err)
		}
		defer func() {
			log.Info("stopping bridge")
			br.Stop()
		}()
	}

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:         cfg.API,
			WS:             cfg.WebSocket,
			Security:       cfg.Security,
			Logger:         log,
			Controller:     client,
			History:        historyReader,
			Audit:          auditLog(auditRepo),
			Version:        version,
			CommandTimeout: cfg.Daemon.CommandTimeout,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		apiServer.Store(srv)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	} else {
		log.Info("API server disabled")
	}

	if err := client.Refresh(ctx); err != nil {
		return fmt.Errorf("enumerating boards: %w", err)
	}

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order: API, bridge, daemon, MQTT,
	// InfluxDB, database.
	return nil
}

// printToken writes a signed API token for subject to w.
func printToken(w io.Writer, cfg config.JWTConfig, subject, roleName string) error {
	role, err := auth.ParseRole(roleName)
	if err != nil {
		return err
	}
	ttl := time.Duration(cfg.AccessTokenTTL) * time.Minute
	token, err := auth.GenerateToken(subject, role, cfg.Secret, ttl)
	if err != nil {
		return fmt.Errorf("issuing token: %w", err)
	}
	fmt.Fprintln(w, token)
	return nil
}

// newDevice returns the device backend selected by cfg.
func newDevice(cfg config.DaemonConfig) (daemon.Daemon, error) {
	if !cfg.Dummy.Enabled {
		return nil, errNoBackend
	}
	boards := make([]daemon.BoardID, 0, len(cfg.Dummy.Boards))
	for _, id := range cfg.Dummy.Boards {
		boards = append(boards, daemon.BoardID(id))
	}
	return device.NewDummy(device.DummyConfig{
		Boards: boards,
		Rows:   cfg.Dummy.Rows,
		Cols:   cfg.Dummy.Cols,
	}), nil
}

// openDatabase opens the history database and applies pending migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.ConfigFrom(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := db.HealthCheck(ctx); err != nil {
		db.Close() //nolint:errcheck // Already failing
		return nil, err
	}

	log.Info("database ready", "path", db.Path(), "migrations_applied", applied)
	return db, nil
}

// prune runs fn with retention now and every pruneInterval until ctx is
// done.
func prune(ctx context.Context, table string, retention time.Duration, fn func(context.Context, time.Duration) (int64, error), log *logging.Logger) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()

	for {
		n, err := fn(ctx, retention)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Warn("pruning failed", "table", table, "error", err)
		case n > 0:
			log.Info("pruned old rows", "table", table, "rows", n, "retention", retention)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// auditRecorder and auditLog keep a nil repository from becoming a non-nil
// interface.
func auditRecorder(repo *audit.SQLiteRepository) bridge.AuditRecorder {
	if repo == nil {
		return nil
	}
	return repo
}

func auditLog(repo *audit.SQLiteRepository) api.AuditLog {
	if repo == nil {
		return nil
	}
	return repo
}

// stopDaemon asks the worker to exit and waits for it to drain.
func stopDaemon(client *daemon.Client, log *logging.Logger) {
	log.Info("stopping daemon")
	client.Exit()

	select {
	case <-client.Done():
	case <-time.After(shutdownTimeout):
		log.Warn("daemon did not stop in time", "timeout", shutdownTimeout)
	}
}
