package main

import (
	"bufio"
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/parley-im/parley/internal/daemon"
	"github.com/parley-im/parley/internal/registry"
	"github.com/parley-im/parley/internal/transport/gateway"
)

func newServerCmd() *cobra.Command {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Manage configured chat servers",
	}
	serverCmd.AddCommand(newServerAddCmd())
	serverCmd.AddCommand(newServerRemoveCmd())
	serverCmd.AddCommand(newServerListCmd())
	serverCmd.AddCommand(newServerActivateCmd())
	serverCmd.AddCommand(newServerSortCmd())
	return serverCmd
}

func newServerAddCmd() *cobra.Command {
	var skipValidation bool
	var insecure bool

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a chat server and make it active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rawURL := args[0]
			ctx := cmd.Context()

			if !skipValidation {
				resolved, err := validateWithAuthPrompt(ctx, rawURL, insecure)
				if err != nil {
					return err
				}
				rawURL = resolved
			}

			instance := instanceName()
			if daemon.IsRunning(instance) {
				client, err := dialGateway(instance)
				if err != nil {
					return err
				}
				defer client.Close()
				if _, err := client.awaitServers(); err != nil {
					return err
				}
				if err := client.send(gateway.TypeServerAdd, map[string]string{"url": rawURL}); err != nil {
					return err
				}
				if _, err := client.awaitServers(); err != nil {
					return err
				}
				fmt.Println("Server added")
				return nil
			}

			return withDirectRegistry(instance, func(reg *registry.Registry) error {
				canonical, added, err := reg.Add(ctx, rawURL)
				if err != nil {
					return err
				}
				if added {
					fmt.Printf("Added %s\n", canonical)
				} else {
					fmt.Printf("%s was already registered; made it active\n", canonical)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "register without probing the server first")
	cmd.Flags().BoolVar(&insecure, "insecure", false, "probe without verifying the server certificate")
	return cmd
}

func newProbe(insecure bool) *registry.Registry {
	if insecure {
		return registry.New(nil, nil, registry.WithInsecureProbe())
	}
	return registry.New(nil, nil)
}

// validateWithAuthPrompt probes the server, asking for credentials when it
// demands HTTP basic auth. Returns the url to register, which embeds any
// credentials the user supplied.
func validateWithAuthPrompt(ctx context.Context, rawURL string, insecure bool) (string, error) {
	probe := newProbe(insecure)

	outcome, err := probe.Validate(ctx, rawURL)
	if err != nil {
		return "", err
	}

	if outcome == registry.ValidationBasicAuthRequired {
		withCreds, err := promptBasicAuth(rawURL)
		if err != nil {
			return "", err
		}
		outcome, err = probe.Validate(ctx, withCreds)
		if err != nil {
			return "", err
		}
		rawURL = withCreds
	}

	switch outcome {
	case registry.ValidationOK:
		return rawURL, nil
	case registry.ValidationTimeout:
		return "", fmt.Errorf("server did not answer in time (use --skip-validation to register anyway)")
	case registry.ValidationBasicAuthRequired:
		return "", fmt.Errorf("server rejected the supplied credentials")
	default:
		return "", fmt.Errorf("%s does not look like a reachable chat server (use --skip-validation to register anyway)", rawURL)
	}
}

func promptBasicAuth(rawURL string) (string, error) {
	fmt.Println("The server requires HTTP basic authentication.")

	fmt.Print("Username: ")
	reader := bufio.NewReader(os.Stdin)
	username, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read username: %w", err)
	}
	username = strings.TrimSpace(username)

	fmt.Print("Password: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	u.User = url.UserPassword(username, string(password))
	return u.String(), nil
}

func newServerRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <url>",
		Short: "Remove a configured server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serverMutation(cmd.Context(), gateway.TypeServerRemove,
				map[string]string{"url": args[0]},
				func(reg *registry.Registry) error {
					reg.Remove(cmd.Context(), args[0])
					return nil
				})
		},
	}
}

func newServerActivateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate <url>",
		Short: "Make a configured server the active one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serverMutation(cmd.Context(), gateway.TypeServerActivate,
				map[string]string{"url": args[0]},
				func(reg *registry.Registry) error {
					reg.SetActive(cmd.Context(), args[0])
					return nil
				})
		},
	}
}

func newServerSortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sort <url>...",
		Short: "Reorder the configured servers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serverMutation(cmd.Context(), gateway.TypeServerReorder,
				map[string][]string{"urls": args},
				func(reg *registry.Registry) error {
					reg.Reorder(cmd.Context(), args)
					return nil
				})
		},
	}
}

// serverMutation routes a registry mutation to the daemon when one is
// running, or applies it directly to the store otherwise.
func serverMutation(ctx context.Context, frameType string, frameData any, direct func(*registry.Registry) error) error {
	instance := instanceName()
	if daemon.IsRunning(instance) {
		client, err := dialGateway(instance)
		if err != nil {
			return err
		}
		defer client.Close()
		if _, err := client.awaitServers(); err != nil {
			return err
		}
		if err := client.send(frameType, frameData); err != nil {
			return err
		}
		_, err = client.awaitServers()
		return err
	}
	return withDirectRegistry(instance, direct)
}

func newServerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			instance := instanceName()

			var servers []gateway.ServerDTO
			if daemon.IsRunning(instance) {
				client, err := dialGateway(instance)
				if err != nil {
					return err
				}
				defer client.Close()
				servers, err = client.awaitServers()
				if err != nil {
					return err
				}
			} else {
				err := withDirectRegistry(instance, func(reg *registry.Registry) error {
					for _, srv := range reg.List() {
						servers = append(servers, gateway.ServerDTO{
							URL:      srv.URL,
							Title:    srv.Title,
							IsActive: srv.IsActive,
							LastPath: srv.LastPath,
						})
					}
					return nil
				})
				if err != nil {
					return err
				}
			}

			if len(servers) == 0 {
				fmt.Println("No servers configured")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "URL\tTITLE\tACTIVE\tUNREAD")
			for _, srv := range servers {
				active := ""
				if srv.IsActive {
					active = "*"
				}
				unread := ""
				if srv.Badge.HasCount && srv.Badge.Count > 0 {
					unread = fmt.Sprintf("%d", srv.Badge.Count)
				} else if srv.Badge.Unread() {
					unread = "•"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", srv.URL, srv.Title, active, unread)
			}
			return w.Flush()
		},
	}
}

func newValidateCmd() *cobra.Command {
	var insecure bool

	cmd := &cobra.Command{
		Use:   "validate <url>",
		Short: "Probe a server without registering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := newProbe(insecure).Validate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Println(outcome)
			if outcome != registry.ValidationOK {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&insecure, "insecure", false, "probe without verifying the server certificate")
	return cmd
}
