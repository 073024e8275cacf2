package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/parley-im/parley/internal/config"
	parleyversion "github.com/parley-im/parley/internal/version"
)

var appEnv config.Environment

func main() {
	env, err := config.LoadEnvironment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	appEnv = env

	rootCmd := &cobra.Command{
		Use:           "parley",
		Short:         "Parley - workspace shell for your chat servers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.Version = parleyversion.String()
	rootCmd.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	rootCmd.AddCommand(newServerCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newCertsCmd())
	rootCmd.AddCommand(newDaemonCmd())
	rootCmd.AddCommand(newResetCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func instanceName() string {
	return appEnv.InstanceName()
}
