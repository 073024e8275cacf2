package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley/internal/certstore"
	"github.com/parley-im/parley/internal/config"
	configstore "github.com/parley-im/parley/internal/config/store"
	"github.com/parley-im/parley/internal/daemon"
)

func newCertsCmd() *cobra.Command {
	certsCmd := &cobra.Command{
		Use:   "certs",
		Short: "Manage trusted server certificates",
	}
	certsCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget every certificate trust decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := instanceName()
			if daemon.IsRunning(instance) {
				return fmt.Errorf("stop the daemon before clearing certificate trust")
			}

			if _, err := config.EnsureInstanceDirs(instance); err != nil {
				return err
			}
			st, err := configstore.Open(configstore.Options{InstanceName: instance})
			if err != nil {
				return fmt.Errorf("open config store: %w", err)
			}
			defer st.Close()

			cs := certstore.New(st, nil)
			count := cs.Count()
			if err := cs.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Cleared %d trust decision(s)\n", count)
			return nil
		},
	})
	return certsCmd
}
