package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"rollcall/internal/config"
	"rollcall/internal/doctor"
	"rollcall/internal/events"
	"rollcall/internal/lock"
	"rollcall/internal/log"
	"rollcall/internal/queue"
	"rollcall/internal/scheduler"
	"rollcall/internal/storage"
	"rollcall/internal/submit"
	"rollcall/internal/tui/panel"
	"rollcall/internal/worker"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	if cmd == "--version" {
		return runVersion(args)
	}

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)
	case "checkin":
		if hasHelpFlag(args) {
			printCheckinHelp()
			return 0
		}
		return runCheckin(args)

	// --- ROOT ALIASES ---
	case "start":
		if hasHelpFlag(args) {
			printSystemStartHelp()
			return 0
		}
		return runStart(args)
	case "status":
		if hasHelpFlag(args) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(args)
	case "doctor":
		return runConfigCheck(args)
	case "version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: rollcall version [--json]")
		return 1
	}

	info := currentVersionInfo()

	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("rollcall %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}

	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	resolvedCommit := strings.TrimSpace(gitCommit)
	if resolvedCommit == "" || resolvedCommit == "unknown" {
		resolvedCommit = strings.TrimSpace(readBuildSetting("vcs.revision"))
	}
	if resolvedCommit != "" {
		info.Commit = shortenCommit(resolvedCommit)
	}

	resolvedBuildTime := strings.TrimSpace(buildDate)
	if resolvedBuildTime == "" || resolvedBuildTime == "unknown" {
		resolvedBuildTime = strings.TrimSpace(readBuildSetting("vcs.time"))
	}
	if normalizedBuildTime, ok := normalizeBuildTimeUTC(resolvedBuildTime); ok {
		info.BuildTime = normalizedBuildTime
	}

	return info
}

func shortenCommit(commit string) string {
	if len(commit) <= 12 {
		return commit
	}
	return commit[:12]
}

func normalizeBuildTimeUTC(raw string) (string, bool) {
	if raw == "" || raw == "unknown" {
		return "", false
	}

	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return "", false
	}

	return t.UTC().Format(time.RFC3339), true
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func printUsage() {
	fmt.Print(`rollcall - Daily web-form check-in automation

Usage:
  rollcall <noun> <action> [flags]

Core Resources (Nouns):
  system    Service lifecycle and health
  config    Configuration and integrity

System Commands:
  system start      Start the check-in service in foreground
  system status     Show service health and lock state

Config Commands:
  config check      Validate configuration and host readiness
  config show       Show resolved configuration
  config get        Read a single configuration value
  config lock       Authorize current config (update integrity hashes)

Check-ins:
  checkin           Run a check-in now, bypassing the daily schedule

General:
  --version         Show version information
  version           Show version information
  help              Show this help message

Root aliases: start, status, doctor.
Use 'rollcall <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "help":
		printSystemNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	case "get":
		if hasHelpFlag(actionArgs) {
			printConfigGetHelp()
			return 0
		}
		return runConfigGet(actionArgs)
	case "help":
		printConfigNounHelp(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// --- HELP TEXT ---

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: rollcall system <action>")
	fmt.Fprintln(w, "Actions: start, status")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: rollcall config <action> [flags]")
	fmt.Fprintln(w, "Actions: lock, check, show, get")
}

func printSystemStartHelp() {
	fmt.Println("Usage: rollcall system start [--config PATH] [--no-ui]")
	fmt.Println("Start the check-in service in the foreground.")
	fmt.Println("")
	fmt.Println("Flags:")
	fmt.Println("  --config PATH    Path to configuration file or directory")
	fmt.Println("  --no-ui          Run headless, without the terminal panel")
	fmt.Println("")
	fmt.Println("Panel keybindings:")
	fmt.Println("  c                Enqueue a manual check-in now")
	fmt.Println("  q, Ctrl+C        Quit")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: rollcall system status [--config PATH] [--json]")
	fmt.Println("Show service health (config, database readiness, and PID lock state).")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  All required checks passed")
	fmt.Println("  1  One or more checks failed")
}

func printCheckinHelp() {
	fmt.Println("Usage: rollcall checkin [--config PATH] [--profile NAME]")
	fmt.Println("Run a check-in now, bypassing the daily schedule.")
	fmt.Println("Submits for every enabled profile unless --profile narrows it to one.")
	fmt.Println("Exit code 0 means every submission succeeded.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: rollcall config lock [--config PATH]")
	fmt.Println("Authorize current configuration state by regenerating integrity hashes.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: rollcall config check [--config PATH] [--json]")
	fmt.Println("Validate configuration and host readiness (browser, state dir, schedule).")
}

func printConfigShowHelp() {
	fmt.Println("Usage: rollcall config show [--config PATH] [--json]")
	fmt.Println("Show the full resolved configuration. Profile phone numbers are masked.")
}

func printConfigGetHelp() {
	fmt.Println("Usage: rollcall config get <path> [--config PATH] [--json]")
	fmt.Println("Read a single value from the resolved configuration, e.g. schedule.hour.")
}

// --- CONFIG RESOLUTION ---

func resolveConfigPath(configPath string) (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.DiscoverConfigDir()
}

func loadConfigAt(configPath string) (*config.Config, string, error) {
	resolved, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Load(resolved)
	if err != nil {
		return nil, "", err
	}
	return cfg, resolved, nil
}

// configFilePath normalizes a config target to the config.yaml file inside it.
func configFilePath(target string) string {
	if stat, err := os.Stat(target); err == nil && stat.IsDir() {
		return filepath.Join(target, "config.yaml")
	}
	return target
}

func pidLockPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.State.Path), "rollcall.pid")
}

// --- SYSTEM START ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	noUI := fs.Bool("no-ui", false, "Run headless, without the terminal panel")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolved, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("rollcall starting", "version", version, "config", resolved)

	lockPath := pidLockPath(cfg)
	pidLock, err := lock.AcquirePIDLock(lockPath)
	if err != nil {
		logger.Error("failed to acquire PID lock (another instance may be running)", "path", lockPath, "error", err)
		return 1
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", lockPath)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	q := queue.New(db)
	hub := events.NewHub(256)

	// Tee the run log into the hub so the panel can show it.
	slog.SetDefault(log.Tee(slog.Default(), hub, slog.LevelInfo))
	logger = log.WithComponent("main")

	// Components read config through this pointer; the watcher swaps it on
	// a valid reload.
	var current atomic.Pointer[config.Config]
	current.Store(cfg)
	getCfg := func() *config.Config { return current.Load() }

	runner := submit.NewRunner(getCfg, log.WithComponent("submit"))
	sched := scheduler.New(cfg, q, hub, slog.Default())
	wrk := worker.New(cfg, q, runner, hub, slog.Default())

	watcher, err := config.NewWatcher(configFilePath(resolved), slog.Default(), func(newCfg *config.Config) {
		current.Store(newCfg)
		sched.SetConfig(newCfg)
		wrk.SetConfig(newCfg)
		hub.Publish(events.TypeConfigReloaded, map[string]any{
			"schedule_enabled": newCfg.Schedule.Enabled,
			"hour":             newCfg.Schedule.Hour,
			"minute":           newCfg.Schedule.Minute,
		})
	})
	if err != nil {
		logger.Error("failed to start config watcher", "error", err)
		return 1
	}
	go watcher.Run(ctx)

	if err := sched.Start(ctx); err != nil {
		logger.Error("failed to start scheduler", "error", err)
		return 1
	}
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := wrk.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("worker: %w", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if !*noUI {
		return runPanel(ctx, cancel, cfg, q, hub, getCfg, sigCh, errCh)
	}

	logger.Info("rollcall running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("rollcall stopped")
	return 0
}

// runPanel hands the terminal over to the panel and keeps raw log lines off
// of it by redirecting the base logger to a file.
func runPanel(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, q *queue.Queue, hub *events.Hub, getCfg func() *config.Config, sigCh chan os.Signal, errCh chan error) int {
	logPath := filepath.Join(filepath.Dir(cfg.State.Path), "rollcall.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Error("failed to open log file for panel mode", "path", logPath, "error", err)
		return 1
	}
	defer logFile.Close()

	log.Redirect(logFile, cfg.Service.LogLevel, cfg.Service.LogFormat)
	slog.SetDefault(log.Tee(slog.Default(), hub, slog.LevelInfo))

	go func() {
		select {
		case <-sigCh:
			cancel()
		case err := <-errCh:
			log.Error("component failed", "error", err)
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := panel.Options{
		Hub:     hub,
		Queue:   q,
		Config:  getCfg,
		Checkin: manualCheckin(q, getCfg),
	}
	if err := panel.Run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "Panel error: %v\n", err)
		cancel()
		return 1
	}
	cancel()
	return 0
}

// manualCheckin enqueues a manual submission for every enabled profile and
// reports what happened in one line. Manual runs carry no dedupe key, so a
// re-run after a success is possible; a profile with a live submission is
// skipped instead of double-queued.
func manualCheckin(q *queue.Queue, getCfg func() *config.Config) panel.CheckinFunc {
	return func(ctx context.Context) (string, error) {
		cfg := getCfg()
		enqueued, skipped := 0, 0
		for _, name := range enabledProfileNames(cfg) {
			outstanding, err := q.OutstandingFor(ctx, name)
			if err != nil {
				return "", err
			}
			if outstanding > 0 {
				skipped++
				continue
			}
			_, err = q.Enqueue(ctx, queue.EnqueueRequest{
				Profile:     name,
				Origin:      queue.OriginManual,
				MaxAttempts: cfg.Retry.MaxAttempts,
			})
			if err != nil {
				return "", err
			}
			enqueued++
		}
		if enqueued == 0 && skipped == 0 {
			return "No enabled profiles to check in", nil
		}
		return fmt.Sprintf("Enqueued %d check-in(s), %d already in flight", enqueued, skipped), nil
	}
}

func enabledProfileNames(cfg *config.Config) []string {
	names := make([]string, 0, len(cfg.Profiles))
	for name, profile := range cfg.Profiles {
		if profile.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// --- SYSTEM STATUS ---

type statusReport struct {
	ConfigPath   string         `json:"config_path"`
	ConfigOK     bool           `json:"config_ok"`
	ConfigError  string         `json:"config_error,omitempty"`
	DatabaseOK   bool           `json:"database_ok"`
	DatabaseErr  string         `json:"database_error,omitempty"`
	QueuedCount  int            `json:"queued_count"`
	RunningCount int            `json:"running_count"`
	ServiceUp    bool           `json:"service_running"`
	ServicePID   int            `json:"service_pid,omitempty"`
	Doctor       *doctor.Result `json:"doctor,omitempty"`
	OverallValid bool           `json:"valid"`
}

func runSystemStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report := statusReport{}

	resolved, err := resolveConfigPath(*configPath)
	if err != nil {
		report.ConfigError = err.Error()
		return printStatus(report, *jsonOut)
	}
	report.ConfigPath = resolved

	cfg, err := config.Load(resolved)
	if err != nil {
		report.ConfigError = err.Error()
		return printStatus(report, *jsonOut)
	}
	report.ConfigOK = true

	ctx, cancelDB := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelDB()
	if db, err := storage.OpenSQLite(ctx, cfg.State.Path); err != nil {
		report.DatabaseErr = err.Error()
	} else {
		report.DatabaseOK = true
		q := queue.New(db)
		if queued, err := q.FindByStatus(ctx, queue.StatusQueued); err == nil {
			report.QueuedCount = len(queued)
		}
		if running, err := q.FindByStatus(ctx, queue.StatusRunning); err == nil {
			report.RunningCount = len(running)
		}
		db.Close()
	}

	lockPath := pidLockPath(cfg)
	if held, err := lock.Held(lockPath); err == nil && held {
		report.ServiceUp = true
		if pid, err := lock.ReadHolderPID(lockPath); err == nil {
			report.ServicePID = pid
		}
	}

	report.Doctor = doctor.New(cfg).Validate()
	report.OverallValid = report.ConfigOK && report.DatabaseOK && report.Doctor.Valid

	return printStatus(report, *jsonOut)
}

func printStatus(report statusReport, jsonOut bool) int {
	exitCode := 0
	if !report.OverallValid {
		exitCode = 1
	}

	if jsonOut {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render status JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return exitCode
	}

	checkMark := func(ok bool) string {
		if ok {
			return "ok"
		}
		return "FAIL"
	}

	fmt.Printf("config:   %s (%s)\n", checkMark(report.ConfigOK), report.ConfigPath)
	if report.ConfigError != "" {
		fmt.Printf("          %s\n", report.ConfigError)
	}
	fmt.Printf("database: %s\n", checkMark(report.DatabaseOK))
	if report.DatabaseErr != "" {
		fmt.Printf("          %s\n", report.DatabaseErr)
	}
	if report.DatabaseOK {
		fmt.Printf("queue:    %d queued, %d running\n", report.QueuedCount, report.RunningCount)
	}
	if report.ServiceUp {
		fmt.Printf("service:  running (pid %d)\n", report.ServicePID)
	} else {
		fmt.Println("service:  not running")
	}
	if report.Doctor != nil {
		fmt.Print(doctor.FormatHuman(report.Doctor))
	}
	return exitCode
}

// --- CHECKIN ---

func runCheckin(args []string) int {
	fs := flag.NewFlagSet("checkin", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	profileName := fs.String("profile", "", "Check in a single profile instead of all enabled ones")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("checkin")

	targets := enabledProfileNames(cfg)
	if *profileName != "" {
		profile, ok := cfg.Profiles[*profileName]
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown profile: %s\n", *profileName)
			return 1
		}
		if !profile.Enabled {
			fmt.Fprintf(os.Stderr, "Profile is disabled: %s\n", *profileName)
			return 1
		}
		targets = []string{*profileName}
	}
	if len(targets) == 0 {
		fmt.Fprintln(os.Stderr, "No enabled profiles to check in")
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		return 1
	}
	defer db.Close()

	q := queue.New(db)
	pending := make(map[string]bool, len(targets))
	for _, name := range targets {
		outstanding, err := q.OutstandingFor(ctx, name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to check queue for %s: %v\n", name, err)
			return 1
		}
		if outstanding > 0 {
			fmt.Printf("%s: a submission is already in flight, skipping\n", name)
			continue
		}
		id, err := q.Enqueue(ctx, queue.EnqueueRequest{
			Profile:     name,
			Origin:      queue.OriginManual,
			MaxAttempts: cfg.Retry.MaxAttempts,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to enqueue %s: %v\n", name, err)
			return 1
		}
		pending[id] = true
	}
	if len(pending) == 0 {
		return 0
	}

	getCfg := func() *config.Config { return cfg }
	runner := submit.NewRunner(getCfg, log.WithComponent("submit"))

	// Drain our submissions synchronously. Dequeue honors the retry backoff,
	// so between attempts this loop just waits.
	failed := 0
	for len(pending) > 0 {
		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "Interrupted")
			return 1
		}

		sub, err := q.Dequeue(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to dequeue: %v\n", err)
			return 1
		}
		if sub == nil {
			time.Sleep(time.Second)
			continue
		}

		logger.Info("executing submission", "profile", sub.Profile, "attempt", sub.Attempt, "max_attempts", sub.MaxAttempts)
		submitErr := runner.Submit(ctx, sub.Profile)

		var errMsg *string
		if submitErr != nil {
			msg := submitErr.Error()
			errMsg = &msg
		}

		status, err := q.CompleteAttempt(ctx, sub.ID, errMsg, cfg.Retry.Backoff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to record attempt outcome: %v\n", err)
			return 1
		}

		switch status {
		case queue.StatusSucceeded:
			fmt.Printf("%s: check-in succeeded\n", sub.Profile)
			delete(pending, sub.ID)
		case queue.StatusQueued:
			fmt.Printf("%s: attempt %d failed (%s), retrying in %s\n", sub.Profile, sub.Attempt, *errMsg, cfg.Retry.Backoff)
		default:
			fmt.Printf("%s: check-in failed after %d attempts: %s\n", sub.Profile, sub.Attempt, *errMsg)
			delete(pending, sub.ID)
			failed++
		}
	}

	if failed > 0 {
		return 1
	}
	return 0
}

// --- CONFIG ACTIONS ---

func runConfigLock(args []string) int {
	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	resolved, err := resolveConfigPath(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve config: %v\n", err)
		return 1
	}

	// Validate before locking so a broken config cannot be authorized.
	if _, err := config.Load(resolved); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	configFile := configFilePath(resolved)
	configDir := filepath.Dir(configFile)
	if err := config.GenerateChecksums(configDir, []string{filepath.Base(configFile)}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write checksums: %v\n", err)
		return 1
	}

	fmt.Printf("Locked %s (checksums written to %s)\n", configFile, filepath.Join(configDir, ".checksums"))
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	result := doctor.New(cfg).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	doc, err := configDocument(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(doc, "", "  ")
		fmt.Println(string(data))
	} else {
		data, _ := yaml.Marshal(doc)
		fmt.Print(string(data))
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: rollcall config get <path> [--json]")
		return 1
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfigAt(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	doc, err := configDocument(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	val, err := lookupConfigPath(doc, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		data, _ := json.MarshalIndent(val, "", "  ")
		fmt.Println(string(data))
	} else {
		fmt.Printf("%v\n", val)
	}
	return 0
}

// configDocument renders the config through its YAML tags into a generic map
// for display, with profile phone numbers masked.
func configDocument(cfg *config.Config) (map[string]any, error) {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	doc := make(map[string]any)
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}

	if profiles, ok := doc["profiles"].(map[string]any); ok {
		for _, v := range profiles {
			profile, ok := v.(map[string]any)
			if !ok {
				continue
			}
			if phone, ok := profile["phone"].(string); ok && phone != "" {
				profile["phone"] = maskPhone(phone)
			}
		}
	}
	return doc, nil
}

func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}

// lookupConfigPath walks a dotted path like "schedule.hour" through nested maps.
func lookupConfigPath(doc map[string]any, path string) (any, error) {
	var current any = doc
	for _, part := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q does not resolve to a value", path)
		}
		current, ok = node[part]
		if !ok {
			return nil, fmt.Errorf("unknown config path segment %q in %q", part, path)
		}
	}
	return current, nil
}
