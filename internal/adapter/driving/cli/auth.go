package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newAuthCmd(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the GitHub credential",
	}
	cmd.AddCommand(
		newAuthLoginCmd(opts),
		newAuthLogoutCmd(opts),
		newAuthStatusCmd(opts),
	)
	return cmd
}

func newAuthLoginCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authorize actionwatch with the GitHub device flow",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			// The console prompter prints the user code to stdout.
			if _, err := app.Broker.Authenticate(cmd.Context()); err != nil {
				return err
			}
			_, _ = color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Authenticated with GitHub")
			return nil
		},
	}
}

func newAuthLogoutCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored credential",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			if err := app.Broker.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Stored credential removed.")
			return nil
		},
	}
}

func newAuthStatusCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a credential is available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			out := cmd.OutOrStdout()
			status := app.Broker.Status(cmd.Context())
			if status.Authenticated {
				fmt.Fprintf(out, "%s (via %s)\n", color.GreenString("Authenticated"), status.Source)
			} else {
				fmt.Fprintln(out, color.RedString("Not authenticated"))
			}
			if status.Interactive {
				fmt.Fprintln(out, "Device flow: configured")
			} else {
				fmt.Fprintln(out, "Device flow: not configured (set ACTIONWATCH_OAUTH_CLIENT_ID)")
			}
			return nil
		},
	}
}
