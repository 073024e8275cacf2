package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley/internal/config"
	configstore "github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/daemon"
	parleyversion "github.com/parley-im/parley/internal/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "parleyd",
		Short:         "Parley daemon - hosts chat server sessions for the shell",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runDaemon,
	}
	rootCmd.Version = parleyversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	env, err := config.LoadEnvironment()
	if err != nil {
		return err
	}
	instance := env.InstanceName()

	if env.Reset {
		if daemon.IsRunning(instance) {
			return fmt.Errorf("cannot reset instance %q while its daemon is running", instance)
		}
		if err := config.WipeInstance(instance); err != nil {
			return fmt.Errorf("reset instance %q: %w", instance, err)
		}
		log.Printf("Instance %q reset to first-run state", instance)
	}

	if daemon.IsRunning(instance) {
		return fmt.Errorf("daemon is already running for instance %q", instance)
	}

	paths, err := config.EnsureInstanceDirs(instance)
	if err != nil {
		return fmt.Errorf("prepare instance directories: %w", err)
	}
	if err := setupLogging(paths); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialise logging: %v\n", err)
	}

	store, err := configstore.Open(configstore.Options{InstanceName: instance})
	if err != nil {
		return fmt.Errorf("open config store: %w", err)
	}

	d, err := daemon.New(daemon.Options{
		Store:   store,
		Version: parleyversion.String(),
	})
	if err != nil {
		store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- d.Start() }()

	log.Printf("Parley daemon started (PID: %d, instance: %s)", os.Getpid(), instance)

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %s, shutting down...", sig)
		d.Shutdown()
		if err := <-errChan; err != nil {
			return err
		}
	case err := <-errChan:
		if err != nil {
			log.Printf("Daemon error: %v", err)
			return err
		}
	}

	log.Println("Daemon stopped")
	return nil
}

func setupLogging(paths config.InstancePaths) error {
	logPath := filepath.Join(paths.Logs, "daemon.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	log.SetOutput(io.MultiWriter(os.Stdout, logFile))
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	return nil
}
