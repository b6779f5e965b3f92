package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/codereview/internal/api"
	"github.com/joescharf/codereview/internal/daemon"
)

const (
	shutdownTimeout = 10 * time.Second
	stopTimeout     = 5 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the REST API server in the foreground",
	Long: `Start an HTTP server exposing the review API under /api/v1.
By default it listens on port 8080. Use --port to change it.

Requests must carry X-User-ID and optionally X-User-Role headers set by a
fronting authentication proxy.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveRun(ctxOrBackground(cmd.Context()))
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the REST API server in the background",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background REST API server",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))

	serveCmd.AddCommand(serveStartCmd, serveStopCmd, serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	dir, _ := configDirFunc()
	return daemon.NewPIDFile(filepath.Join(dir, "codereview-serve.pid"))
}

func serveLogPath() string {
	dir, _ := configDirFunc()
	return filepath.Join(dir, "codereview-serve.log")
}

func serveRun(ctx context.Context) error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running && pid != os.Getpid() {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	client, err := newLLMClient()
	if err != nil {
		return err
	}
	p, err := newPipeline(client)
	if err != nil {
		return err
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	if err := pf.Write(); err != nil {
		return fmt.Errorf("write PID file: %w", err)
	}
	defer func() { _ = pf.RemoveIfOwned(os.Getpid()) }()

	ctx, stop := signal.NotifyContext(ctx, shutdownSignals()...)
	defer stop()

	addr := fmt.Sprintf(":%d", viper.GetInt("port"))
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(p, s, client, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	ui.Success("Serving API at http://localhost%s/api/v1", addr)
	logger.Info("server started", "addr", addr, "pid", os.Getpid())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	args := []string{"serve", "--port", strconv.Itoa(viper.GetInt("port"))}
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}

	if dryRun {
		ui.DryRunMsg("Would run %s %v in the background", exe, args)
		return nil
	}

	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	detach(child)
	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// The child writes its own PID file once listening; record it now so
	// an immediate stop finds it.
	if err := pf.WritePID(child.Process.Pid); err != nil {
		return err
	}
	_ = child.Process.Release()

	ui.Success("Server started (pid %d), logging to %s", child.Process.Pid, serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server not running")
	}

	if dryRun {
		ui.DryRunMsg("Would stop server (pid %d)", pid)
		return nil
	}

	graceful, forced := stopSignals()
	if err := pf.Signal(graceful); err != nil {
		if errors.Is(err, daemon.ErrNotRunning) {
			return fmt.Errorf("server not running")
		}
		return err
	}

	deadline := time.Now().Add(stopTimeout)
	for time.Now().Before(deadline) {
		if _, alive := pf.IsRunning(); !alive {
			_ = pf.Remove()
			ui.Success("Server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	ui.Warning("Server did not exit within %s, killing", stopTimeout)
	if err := pf.Signal(forced); err != nil && !errors.Is(err, daemon.ErrNotRunning) {
		return err
	}
	_ = pf.Remove()
	ui.Success("Server killed (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}
	ui.Success("Server running (pid %d), log: %s", pid, serveLogPath())
	return nil
}
