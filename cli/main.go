package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	tokenFile string
	verbose   bool
	Version   = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "dpc",
		Short:         "dpc - device policy controller client",
		Long:          "Inspect the device policy controller and issue lock and password policy commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("DPC_SERVER", "http://127.0.0.1:8087"), "Controller URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("DPC_ADMIN_TOKEN"), "Admin bearer token")
	rootCmd.PersistentFlags().StringVar(&tokenFile, "token-file", "/etc/dpc/admin.token", "File holding the admin bearer token")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log requests and retries")

	rootCmd.AddCommand(
		statusCmd(),
		auditCmd(),
		outcomesCmd(),
		lockCmd(),
		passwordCmd(),
		eventCmd(),
		activateCmd(),
		removeCmd(),
		versionCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func newLogger() zerolog.Logger {
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	return zerolog.New(writer).With().Timestamp().Logger().Level(level)
}

// resolveToken prefers --token and falls back to the token file. Read-only
// commands work without one.
func resolveToken() string {
	if token != "" {
		return token
	}
	if tokenFile == "" {
		return ""
	}
	data, err := os.ReadFile(tokenFile)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func newCLIClient() *client {
	return newClient(serverURL, resolveToken(), newLogger())
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ownership, admin activation and tracked state",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status statusView
			if err := newCLIClient().get(cmd.Context(), "/v1/status", &status); err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func auditCmd() *cobra.Command {
	var since int
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "List lifecycle events recorded by the controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			if since < 0 {
				return errors.New("--since must be non-negative")
			}
			var audit auditView
			if err := newCLIClient().get(cmd.Context(), "/v1/audit?since="+strconv.Itoa(since), &audit); err != nil {
				return err
			}
			renderAudit(cmd.OutOrStdout(), audit, since)
			return nil
		},
	}
	cmd.Flags().IntVar(&since, "since", 0, "Only show events from this index onward")
	return cmd
}

func outcomesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "outcomes",
		Short: "Show recent command outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			var outcomes outcomesView
			if err := newCLIClient().get(cmd.Context(), "/v1/outcomes", &outcomes); err != nil {
				return err
			}
			renderOutcomes(cmd.OutOrStdout(), outcomes)
			return nil
		},
	}
}

func lockCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock the device screen now",
		RunE: func(cmd *cobra.Command, args []string) error {
			var body any
			if cmd.Flags().Changed("timeout") {
				body = map[string]int64{"timeout_ms": timeout.Milliseconds()}
			}
			return runCommand(cmd, "/v1/commands/lock", body)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Lock timeout hint (recorded, not enforced by the platform)")
	return cmd
}

func passwordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Set password policy",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "quality [quality]",
			Short: "Set the required password quality (name, low/medium/high, or numeric)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return runCommand(cmd, "/v1/commands/password-quality", map[string]string{"quality": args[0]})
			},
		},
		&cobra.Command{
			Use:     "min-length [length]",
			Aliases: []string{"minimum-length"},
			Short:   "Set the minimum password length",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid length %q: %w", args[0], err)
				}
				return runCommand(cmd, "/v1/commands/password-minimum-length", map[string]int{"length": n})
			},
		},
	)
	return cmd
}

func eventCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "event [kind] [package]",
		Short: "Deliver a platform lifecycle callback to the controller",
		Long:  "Kinds: enabled, disabled, disable_requested, password_changed, password_failed, password_succeeded, lock_task_entering, lock_task_exiting",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]string{"kind": args[0]}
			if len(args) == 2 {
				body["package"] = args[1]
			}
			var receipt struct {
				From    string `json:"from"`
				To      string `json:"to"`
				Warning string `json:"warning"`
			}
			if err := newCLIClient().post(cmd.Context(), "/v1/events", body, &receipt); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s -> %s\n", args[0], receipt.From, receipt.To)
			if receipt.Warning != "" {
				color.New(color.FgYellow).Fprintf(out, "Warning: %s\n", receipt.Warning)
			}
			return nil
		},
	}
}

func activateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "activate",
		Short: "Request activation of the controller's admin component",
		RunE: func(cmd *cobra.Command, args []string) error {
			var status statusView
			if err := newCLIClient().post(cmd.Context(), "/v1/admin/activate", nil, &status); err != nil {
				return err
			}
			renderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deactivate",
		Short: "Remove the controller's admin component",
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Removed bool       `json:"removed"`
				Warning string     `json:"warning"`
				Status  statusView `json:"status"`
			}
			if err := newCLIClient().post(cmd.Context(), "/v1/admin/remove", nil, &resp); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if resp.Removed {
				color.New(color.FgYellow).Fprintf(out, "%s\n\n", resp.Warning)
			} else {
				fmt.Fprintf(out, "Admin component was not active.\n\n")
			}
			renderStatus(out, resp.Status)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "dpc version %s\n", Version)
		},
	}
}

func runCommand(cmd *cobra.Command, path string, body any) error {
	resp, err := newCLIClient().command(cmd.Context(), path, body)
	if err != nil {
		return err
	}
	renderCommand(cmd.OutOrStdout(), resp)
	if resp.Outcome.Outcome != "executed" {
		return fmt.Errorf("command %s", resp.Outcome.Outcome)
	}
	return nil
}
