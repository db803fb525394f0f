package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/k2riddim/linkedin-research-suite/pkg/client"
)

var version = "dev"

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by all commands.
type GlobalFlags struct {
	ConfigPath string
	APIUrl     string
	APITimeout time.Duration
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}

	root := &cobra.Command{
		Use:   "lrs",
		Short: "LinkedIn research suite supervisor",
		Long: `lrs starts and supervises the research suite's services (browser
automation, API, dashboard) and manages remote browser sessions.

Examples:
  lrs up --config=suite.toml          # Start the whole suite
  lrs status                          # Service status from a running daemon
  lrs sessions list
  lrs sessions cleanup`,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "suite.toml", "path to TOML config file")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "http://localhost:8080", "daemon base URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 10*time.Second, "daemon request timeout")

	root.AddCommand(
		createUpCommand(flags),
		createStatusCommand(flags),
		createSessionsCommand(flags),
		createVersionCommand(),
	)
	return root
}

func apiClient(flags *GlobalFlags) *client.Client {
	cfg := client.DefaultConfig()
	cfg.BaseURL = flags.APIUrl
	cfg.Timeout = flags.APITimeout
	return client.New(cfg)
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service status from a running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := apiClient(flags)
			ctx, cancel := context.WithTimeout(cmd.Context(), flags.APITimeout)
			defer cancel()
			sts, err := c.Services(ctx)
			if err != nil {
				return err
			}
			for _, st := range sts {
				line := fmt.Sprintf("%-12s %-10s restarts=%d", st.Name, st.State, st.Restarts)
				if st.PID > 0 {
					line += fmt.Sprintf(" pid=%d uptime=%s", st.PID, st.Uptime)
				}
				cmd.Println(line)
			}
			return nil
		},
	}
}

func createSessionsCommand(flags *GlobalFlags) *cobra.Command {
	sessions := &cobra.Command{
		Use:   "sessions",
		Short: "Manage browser automation sessions",
	}
	sessions.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List live sessions",
			RunE: func(cmd *cobra.Command, args []string) error {
				c := apiClient(flags)
				ctx, cancel := context.WithTimeout(cmd.Context(), flags.APITimeout)
				defer cancel()
				list, err := c.Sessions(ctx)
				if err != nil {
					return err
				}
				if len(list) == 0 {
					cmd.Println("no live sessions")
					return nil
				}
				for _, s := range list {
					cmd.Printf("%s  remote=%s  last_activity=%s\n",
						s.SessionID, s.RemoteID, s.LastActivity.Format(time.RFC3339))
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "cleanup",
			Short: "Close every live session",
			RunE: func(cmd *cobra.Command, args []string) error {
				c := apiClient(flags)
				ctx, cancel := context.WithTimeout(cmd.Context(), flags.APITimeout)
				defer cancel()
				sum, err := c.Cleanup(ctx)
				if err != nil {
					return err
				}
				cmd.Printf("closed %d of %d sessions (%d failed)\n", sum.Succeeded, sum.Total, sum.Failed)
				return nil
			},
		},
	)
	return sessions
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println("lrs", version)
		},
	}
}
