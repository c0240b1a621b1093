package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"txconfirm/pkg/backend"
	"txconfirm/pkg/config"
	"txconfirm/pkg/confirm"
	"txconfirm/pkg/server"
	"txconfirm/pkg/store"
	"txconfirm/pkg/tui"
	"txconfirm/pkg/watcher"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-isatty"
)

// Version should be set during build
var Version = "dev"

func main() {
	testFlag := flag.Bool("t", false, "Test configuration and exit")
	testLongFlag := flag.Bool("test", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	dryRunFlag := flag.Bool("dry-run", false, "Perform a trial run with no changes made")
	restoreFlag := flag.Bool("restore", false, "Restore the last configuration backup and exit")
	configFlag := flag.String("config", "", "Path to configuration file")
	pendingFlag := flag.String("pending", "", "Import pending requests from a JSON file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("txconfirm version %s\n", Version)
		os.Exit(0)
	}

	cfgInput := *configFlag
	if cfgInput == "" && len(flag.Args()) > 0 {
		cfgInput = flag.Args()[0]
	}
	path, err := config.GetConfigPath(cfgInput)
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	if *restoreFlag {
		if err := config.RestoreLastBackup(path); err != nil {
			fmt.Printf("Failed to restore backup: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Restored last backup to %s\n", path)
		os.Exit(0)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}

	if *testFlag || *testLongFlag {
		var out io.Writer = os.Stdout
		if *jsonFlag {
			out = io.Discard
		}
		report := checkConfig(context.Background(), &cfg, path, *dryRunFlag, out)
		if *jsonFlag {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			_ = enc.Encode(report)
		}
		if !report.ValidStructure {
			os.Exit(1)
		}
		os.Exit(0)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		fmt.Printf("Please create a config file at %s with 'networks'.\n", path)
		os.Exit(1)
	}

	closeLog, err := setupLogging(cfg.Global.LogLevel, *serverFlag, path)
	if err != nil {
		fmt.Printf("Error setting up logging: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	st := store.New()
	if *pendingFlag != "" {
		n, err := st.ImportFile(*pendingFlag)
		if err != nil {
			log.Error("Failed to import pending requests", "file", *pendingFlag, "imported", n, "err", err)
		} else {
			log.Info("Imported pending requests", "file", *pendingFlag, "count", n)
		}
	}

	wallet := backend.New(cfg, st)
	orch := confirm.New(wallet, wallet, confirm.Options{
		FeeRefreshInterval: cfg.Global.FeeRefreshInterval(),
		SimulationEnabled:  cfg.Global.SimulationEnabled,
		BytecodeTTL:        cfg.Global.BytecodeTTL(),
	})
	defer orch.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := watcher.NewWatcher(orch, 0)
	w.Start(ctx)
	defer w.Stop()

	srv := server.NewServer(orch, st, w)
	go func() {
		if err := srv.Start(*portFlag); err != nil {
			log.Error("Server error", "err", err)
		}
	}()

	if *serverFlag {
		fmt.Printf("Running in server mode on port %d...\n", *portFlag)
		<-ctx.Done()
		return
	}

	if err := tui.Start(orch, w, cfg.Global, Version); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// setupLogging installs the default logger. The panel owns the terminal, so
// outside server mode logs go to a file next to the configuration.
func setupLogging(level string, toStderr bool, configPath string) (func(), error) {
	lvl, err := parseLevel(level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using info\n", err)
	}

	if toStderr {
		useColor := (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
		log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(os.Stderr, lvl, useColor)))
		return func() {}, nil
	}

	logPath := filepath.Join(filepath.Dir(configPath), "txconfirm.log")
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(f, lvl, false)))
	return func() { _ = f.Close() }, nil
}

// parseLevel maps a config log level name to a logger level.
func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return log.LevelTrace, nil
	case "debug":
		return log.LevelDebug, nil
	case "", "info":
		return log.LevelInfo, nil
	case "warn", "warning":
		return log.LevelWarn, nil
	case "error":
		return log.LevelError, nil
	case "crit", "critical":
		return log.LevelCrit, nil
	}
	return log.LevelInfo, fmt.Errorf("unknown log level %q", level)
}
