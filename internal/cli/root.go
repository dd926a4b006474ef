package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app is the per-invocation state shared by all subcommands
type app struct {
	configFile string
	settings   *Settings
	client     *Client
}

// NewRootCmd builds the tidesctl command tree. Each call has its own viper
// instance, so trees can be built side by side.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}
	v := viper.New()

	root := &cobra.Command{
		Use:   "tidesctl",
		Short: "tidesctl - Command-line client for the tides server",
		Long: `tidesctl drives a tides server over its HTTP API.

Examples:
  tidesctl create "Deep Work" --flow daily
  tidesctl flow <tide-id> --intensity moderate --duration 25
  tidesctl list --active
  tidesctl watch

Config: ~/.tides/tidesctl.yaml (server, token, user)
Env:    TIDES_SERVER, TIDES_TOKEN, TIDES_USER, TIDES_JWT_SECRET`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			settings, err := LoadSettings(v, cmd.Flags(), a.configFile)
			if err != nil {
				return err
			}
			if settings.NoColor {
				color.NoColor = true
			}
			a.settings = settings
			a.client = NewClient(settings.Server, settings.Token, settings.User)
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "config file (default ~/.tides/tidesctl.yaml)")
	flags.String("server", "", "tides server URL (default "+DefaultServerURL+")")
	flags.String("token", "", "bearer token")
	flags.String("user", "", "owner id sent as X-User-ID when no token is set (development servers only)")
	flags.Bool("no-color", false, "disable coloured output")

	root.AddCommand(
		a.createCmd(),
		a.listCmd(),
		a.getCmd(),
		a.updateCmd(),
		a.flowCmd(),
		a.energyCmd(),
		a.linkCmd(),
		a.linksCmd(),
		a.unlinkCmd(),
		a.reportCmd(),
		a.insightsCmd(),
		a.rebuildIndexCmd(),
		a.watchCmd(),
		a.tokenCmd(),
	)
	return root
}

// Execute runs tidesctl with the process arguments
func Execute(version string) {
	root := NewRootCmd(version)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		printError(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
}
