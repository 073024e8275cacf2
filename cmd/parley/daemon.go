package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley/internal/daemon"
	"github.com/parley-im/parley/internal/procutil"
)

func newDaemonCmd() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Inspect and control the background daemon",
	}

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the daemon is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := instanceName()
			if pid := daemon.RunningPID(instance); pid != 0 {
				fmt.Printf("Running (instance: %s, PID: %d)\n", instance, pid)
			} else if daemon.IsRunning(instance) {
				fmt.Printf("Running (instance: %s)\n", instance)
			} else {
				fmt.Printf("Not running (instance: %s)\n", instance)
			}
			return nil
		},
	})

	daemonCmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Ask the running daemon to shut down",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := instanceName()
			pid := daemon.RunningPID(instance)
			if pid == 0 {
				return fmt.Errorf("daemon is not running for instance %q", instance)
			}
			if err := procutil.TerminateByPID(pid); err != nil {
				return fmt.Errorf("signal daemon (PID %d): %w", pid, err)
			}

			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				if !procutil.IsProcessAlive(pid) {
					fmt.Println("Daemon stopped")
					return nil
				}
				time.Sleep(100 * time.Millisecond)
			}
			return fmt.Errorf("daemon (PID %d) did not stop in time", pid)
		},
	})

	return daemonCmd
}
