package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley/internal/config"
	"github.com/parley-im/parley/internal/daemon"
)

func newResetCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Wipe all persisted state for this instance",
		Long: "Removes the instance's servers, trust decisions, window state and\n" +
			"settings so the next launch starts from first-run state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := instanceName()
			if daemon.IsRunning(instance) {
				return fmt.Errorf("stop the daemon before resetting instance %q", instance)
			}

			if !force {
				fmt.Printf("This erases everything stored for instance %q. Continue? [y/N] ", instance)
				reader := bufio.NewReader(os.Stdin)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return err
				}
				if strings.ToLower(strings.TrimSpace(answer)) != "y" {
					fmt.Println("Aborted")
					return nil
				}
			}

			if err := config.WipeInstance(instance); err != nil {
				return fmt.Errorf("reset instance %q: %w", instance, err)
			}
			fmt.Printf("Instance %q reset\n", instance)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "skip the confirmation prompt")
	return cmd
}
