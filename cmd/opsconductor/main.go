package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/HerbHall/opsconductor/internal/audit"
	"github.com/HerbHall/opsconductor/internal/config"
	"github.com/HerbHall/opsconductor/internal/event"
	"github.com/HerbHall/opsconductor/internal/probe"
	"github.com/HerbHall/opsconductor/internal/settings"
	"github.com/HerbHall/opsconductor/internal/store"
	"github.com/HerbHall/opsconductor/internal/target"
	"github.com/HerbHall/opsconductor/internal/vault"
	"github.com/HerbHall/opsconductor/internal/version"
	"github.com/HerbHall/opsconductor/pkg/plugin"
)

const usage = `usage: opsconductor <command> [subcommand] [flags]

commands:
  target        create | get | list | update | delete | test | health
  method        add | update | delete | test
  email-target  get | set | list | clear
  audit         list | prune
  version       print version information

Every command accepts -config <path> and -user <id>.`

// command runs one subcommand against an opened app.
type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]map[string]command{
	"target": {
		"create": runTargetCreate,
		"get":    runTargetGet,
		"list":   runTargetList,
		"update": runTargetUpdate,
		"delete": runTargetDelete,
		"test":   runTargetTest,
		"health": runTargetHealth,
	},
	"method": {
		"add":    runMethodAdd,
		"update": runMethodUpdate,
		"delete": runMethodDelete,
		"test":   runMethodTest,
	},
	"email-target": {
		"get":   runEmailGet,
		"set":   runEmailSet,
		"list":  runEmailList,
		"clear": runEmailClear,
	},
	"audit": {
		"list":  runAuditList,
		"prune": runAuditPrune,
	},
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "version":
		fmt.Println(version.Info())
		return
	case "help", "-h", "--help":
		fmt.Println(usage)
		return
	}

	group, ok := commands[os.Args[1]]
	if !ok || len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	run, ok := group[os.Args[2]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown %s subcommand %q\n\n%s\n", os.Args[1], os.Args[2], usage)
		os.Exit(2)
	}

	os.Exit(execute(os.Args[1]+" "+os.Args[2], run, os.Args[3:]))
}

// execute opens the app, runs the command, and maps its error to an exit code.
func execute(name string, run command, args []string) int {
	configPath, userID, rest := globalFlags(args)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if userID != "" {
		ctx = audit.WithUserID(ctx, userID)
	}

	a, err := openApp(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer a.Close()

	if err := run(ctx, a, rest); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		a.logger.Debug("command failed", zap.String("command", name), zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		return exitCode(err)
	}
	return 0
}

// exitCode distinguishes caller mistakes from missing records and
// everything else.
func exitCode(err error) int {
	switch {
	case target.IsValidation(err):
		return 3
	case target.IsNotFound(err),
		errors.Is(err, settings.ErrNoEmailTarget):
		return 4
	default:
		return 1
	}
}

// globalFlags strips -config and -user from args wherever they appear.
func globalFlags(args []string) (configPath, userID string, rest []string) {
	for i := 0; i < len(args); i++ {
		name, value, hasValue := splitFlag(args[i])
		switch name {
		case "config", "user":
		default:
			rest = append(rest, args[i])
			continue
		}
		if !hasValue && i+1 < len(args) {
			i++
			value = args[i]
		}
		if name == "config" {
			configPath = value
		} else {
			userID = value
		}
	}
	return configPath, userID, rest
}

func splitFlag(arg string) (name, value string, hasValue bool) {
	if len(arg) < 2 || arg[0] != '-' {
		return "", "", false
	}
	name = arg[1:]
	if name[0] == '-' {
		name = name[1:]
	}
	for i := 0; i < len(name); i++ {
		if name[i] == '=' {
			return name[:i], name[i+1:], true
		}
	}
	return name, "", false
}

// app holds the wired service graph for one CLI invocation.
type app struct {
	logger  *zap.Logger
	db      *store.SQLiteStore
	bus     *event.Bus
	audit   *audit.Recorder
	targets *target.Service
	email   *settings.EmailTarget
}

func openApp(ctx context.Context, configPath string) (*app, error) {
	viperCfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	cfg := config.New(viperCfg)

	logger, err := config.NewLogger(viperCfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	if f := viperCfg.ConfigFileUsed(); f != "" {
		logger.Debug("configuration loaded", zap.String("component", "config"), zap.String("source", f))
	}

	dbPath := cfg.GetString("database.path")
	db, err := store.New(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{logger: logger, db: db}

	if err := a.init(ctx, cfg, dbPath); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) init(ctx context.Context, cfg plugin.Config, dbPath string) error {
	if err := a.db.CheckVersion(ctx, version.Short()); err != nil {
		return err
	}
	components := []struct {
		name       string
		migrations []plugin.Migration
	}{
		{"audit", audit.Migrations()},
		{"target", target.Migrations()},
		{"settings", settings.Migrations()},
	}
	for _, c := range components {
		if err := a.db.Migrate(ctx, c.name, c.migrations); err != nil {
			return err
		}
	}
	a.logger.Debug("database initialized", zap.String("component", "database"), zap.String("path", dbPath))

	cipherCfg := vault.DefaultConfig()
	if err := cfg.Sub("credentials").Unmarshal(&cipherCfg); err != nil {
		return fmt.Errorf("credentials config: %w", err)
	}
	cipher, err := vault.NewCipherFromConfig(cipherCfg)
	if err != nil {
		return fmt.Errorf("%w (set credentials.secret or OC_CREDENTIALS_SECRET)", err)
	}

	settingsStore := settings.NewStore(a.db.DB())
	if err := settings.VerifySecret(ctx, settingsStore, cipher); err != nil {
		return err
	}

	probeCfg := probe.DefaultConfig()
	if err := cfg.Sub("probe").Unmarshal(&probeCfg); err != nil {
		return fmt.Errorf("probe config: %w", err)
	}
	prober := probe.New(probeCfg, a.logger.Named("probe"), prometheus.DefaultRegisterer)

	a.bus = event.NewBus(a.logger.Named("event"))
	a.audit = audit.NewRecorder(a.db.DB(), a.bus, a.logger.Named("audit"))
	a.targets = target.NewService(a.db.DB(), cipher, prober, a.audit, a.logger.Named("target"))
	a.email = settings.NewEmailTarget(settingsStore, a.targets, a.audit, a.logger.Named("settings"))
	return nil
}

// Close waits briefly for pending audit deliveries, then releases the database.
func (a *app) Close() {
	if a.bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.bus.Drain(ctx); err != nil {
			a.logger.Warn("event bus did not drain", zap.Error(err))
		}
		cancel()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close database", zap.Error(err))
	}
	_ = a.logger.Sync()
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
