// Package main implements the farm bot daemon, which holds the game session
// and runs the automation loops, exposing its state over the event bus.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/505260991/qq-farm-bot/internal/bot"
	"github.com/505260991/qq-farm-bot/internal/bus"
	"github.com/505260991/qq-farm-bot/internal/game"
	"github.com/505260991/qq-farm-bot/internal/logbuf"
	"github.com/505260991/qq-farm-bot/internal/logger"
	"github.com/505260991/qq-farm-bot/internal/notify"
	"github.com/505260991/qq-farm-bot/internal/paths"
	"github.com/505260991/qq-farm-bot/internal/stats"
	"github.com/505260991/qq-farm-bot/internal/store"
	"github.com/505260991/qq-farm-bot/internal/update"
	"github.com/505260991/qq-farm-bot/internal/warehouse"
)

// ///////////////////////////////////////////////
// Version
// ///////////////////////////////////////////////

// version is set at build time via ldflags (-X main.version=...). When
// ldflags are not set (bare go build), resolveVersion reads the VCS info
// that Go embeds automatically, so dev builds get a useful version string
// without needing git at runtime.
var version = "dev"

// resolveVersion returns the build version string. If [version] was set via
// ldflags at build time it is returned as-is; otherwise VCS revision and dirty
// state embedded by the Go toolchain are used to construct a "dev+<hash>" tag.
func resolveVersion() string {
	if version != "dev" {
		return version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return version
	}
	var revision string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return version
	}
	hash := revision[:min(7, len(revision))]
	if dirty {
		return "dev+" + hash + ".dirty"
	}
	return "dev+" + hash
}

// ///////////////////////////////////////////////
// PID Management
// ///////////////////////////////////////////////

// pidToken generates a random 16-character hex token used to prove ownership
// of the PID file, so [removePID] only deletes the file if this instance wrote it.
func pidToken() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// writePID creates or opens the PID file at [DataPaths.PID], acquires an
// advisory file lock, and writes "PID:TOKEN" content. The returned file handle
// must be kept open for the lifetime of the daemon to hold the lock; pass it to
// [removePID] on shutdown.
func writePID(paths DataPaths, token string) (*os.File, error) {
	f, err := os.OpenFile(paths.PID(), os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open PID file: %w", err)
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock PID file: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("truncate PID file: %w", err)
	}
	content := fmt.Sprintf("%d:%s", os.Getpid(), token)
	if _, err := f.WriteString(content); err != nil {
		_ = unlockFile(f)
		f.Close()
		return nil, fmt.Errorf("write PID file: %w", err)
	}
	return f, nil
}

// removePID releases the advisory lock, closes the file handle, and removes the
// PID file only if the stored token matches, preventing accidental removal of a
// file owned by a different daemon instance.
func removePID(paths DataPaths, token string, f *os.File) {
	if f != nil {
		_ = unlockFile(f)
		f.Close()
	}
	data, err := os.ReadFile(paths.PID())
	if err != nil {
		return
	}
	parts := strings.SplitN(string(data), ":", 2)
	if len(parts) == 2 && parts[1] == token {
		os.Remove(paths.PID())
	}
}

// checkStalePID checks whether another daemon instance is running. It attempts
// to acquire the advisory lock on the PID file; if the lock fails, another
// instance holds it. If the lock succeeds, any previous instance is dead and
// the stale file is cleaned up.
func checkStalePID(paths DataPaths) (alive bool, pid int) {
	f, err := os.OpenFile(paths.PID(), os.O_RDWR, 0o600)
	if err != nil {
		return false, 0
	}

	if lockErr := lockFile(f); lockErr != nil {
		data, _ := os.ReadFile(paths.PID())
		f.Close()
		parts := strings.SplitN(string(data), ":", 2)
		if len(parts) >= 1 {
			if p, convErr := strconv.Atoi(parts[0]); convErr == nil {
				return true, p
			}
		}
		return true, 0
	}

	// Lock acquired -- previous instance is dead. Clean up stale file.
	_ = unlockFile(f)
	f.Close()
	os.Remove(paths.PID())
	return false, 0
}

// ///////////////////////////////////////////////
// Default Data Directory
// ///////////////////////////////////////////////

// defaultDataDir returns the platform default directory for bot data,
// typically ~/.farmbot. Falls back to ./.farmbot if the home directory
// cannot be determined.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", paths.DataDirRel)
	}
	return filepath.Join(home, paths.DataDirRel)
}

// ///////////////////////////////////////////////
// Login Credential
// ///////////////////////////////////////////////

// resolveCredential picks the login code to connect with: the -code flag
// wins, otherwise the most recently used stored account. Empty means the
// daemon starts without connecting and waits for a connect command.
func resolveCredential(flagCode string, st *store.Store) (code, platform string) {
	if flagCode != "" {
		return flagCode, ""
	}
	var best store.Account
	for _, a := range st.Accounts() {
		if a.LastUsed > best.LastUsed {
			best = a
		}
	}
	return best.Code, best.Platform
}

// ///////////////////////////////////////////////
// Main
// ///////////////////////////////////////////////

func main() {
	dataDir := flag.String("data-dir", defaultDataDir(), "Data directory for config, state, and logs")
	code := flag.String("code", "", "Login code to connect with at startup (defaults to the most recent stored account)")
	platform := flag.String("platform", "", "Platform to connect on (defaults to the configured platform)")
	flag.Parse()

	dp := DataPaths{Root: *dataDir}

	if err := os.MkdirAll(dp.Root, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: create data dir: %v\n", err)
		os.Exit(1)
	}

	if alive, pid := checkStalePID(dp); alive {
		fmt.Fprintf(os.Stderr, "daemon already running (pid %d)\n", pid)
		os.Exit(1)
	}

	st := store.New(dp.Config())
	cfg := st.Get()

	logLevel := logger.ParseLevel(cfg.LogLevel)
	log, logCloser, err := logger.NewLogger(dp.Log(), logLevel, cfg.LogMaxSizeMB)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: init logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()
	slog.SetDefault(log)

	ver := resolveVersion()
	slog.Info("farmbotd starting", "version", ver, "data_dir", dp.Root)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("update check panic", "error", r)
			}
		}()
		update.Check(ver)
	}()

	token := pidToken()
	pidFile, err := writePID(dp, token)
	if err != nil {
		slog.Error("failed to write PID file", "error", err)
		os.Exit(1)
	}
	defer removePID(dp, token, pidFile)

	gameLogs := logbuf.New()
	gameLogf := func(category, message string) { gameLogs.Append(category, message) }
	collab, err := game.Open(driverName(), gameLogf)
	if err != nil {
		slog.Error("no game transport available", "error", err)
		os.Exit(1)
	}

	eventBus := bus.New()
	notifier := notify.New(collab.Session.UserState)
	accumulator := stats.New(st, eventBus)
	sellLoop := warehouse.NewSellLoop(collab.Warehouse, accumulator, log)

	b := bot.New(bot.Deps{
		Session: collab.Session,
		Farm:    collab.Farm,
		Friend:  collab.Friend,
		Tasks:   collab.Tasks,
		Mall:    collab.Mall,
		Store:   st,
		Bus:     eventBus,
		Notify:  notifier,
		Stats:   accumulator,
		Sell:    sellLoop,
		Logs:    gameLogs,
		Log:     log,
	})

	watcher, err := store.NewWatcher(dp.Config())
	if err != nil {
		slog.Error("failed to create config watcher", "error", err)
		os.Exit(1)
	}
	defer watcher.Close()

	if watcher.Polling() {
		slog.Info("using polling mode for config watching")
	}

	if c, p := resolveCredential(*code, st); c != "" {
		if *platform != "" {
			p = *platform
		}
		go func() {
			if connErr := b.Connect(c, p); connErr != nil {
				slog.Warn("startup connect failed", "error", connErr)
			}
		}()
	} else {
		slog.Info("no stored account, waiting for connect command")
	}

	run(b, watcher)

	b.Disconnect()
	if flushErr := st.Flush(); flushErr != nil {
		slog.Warn("final config flush failed", "error", flushErr)
	}
	slog.Info("farmbotd stopped")
}

// driverName selects the game transport driver. With exactly one driver
// linked into the build, that driver is used; otherwise the build's default.
func driverName() string {
	if names := game.DriverNames(); len(names) == 1 {
		return names[0]
	}
	return "qqfarm"
}

// ///////////////////////////////////////////////
// Event Loop
// ///////////////////////////////////////////////

// run blocks until an OS shutdown signal arrives, applying external config
// file edits as they happen.
func run(b *bot.Bot, watcher *store.Watcher) {
	sigCh := signalChannel()
	for {
		select {
		case <-sigCh:
			slog.Info("received shutdown signal")
			return
		case <-watcher.Events():
			b.ReloadConfig()
		}
	}
}
