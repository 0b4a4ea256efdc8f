package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/actionwatch/internal/application"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

func newCheckCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "check [owner/repo branch]",
		Short: "Run one polling cycle now, or check a single target",
		Long: `Without arguments check runs one cycle over the whole watch list and
prints a line per target. With a repository and branch it checks only that
target. Notifications are emitted exactly as the server would emit them.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 2 {
				return fmt.Errorf("accepts 0 or 2 args, received %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var key model.TargetKey
			if len(args) == 2 {
				var err error
				if key, err = model.ParseTargetKey(args[0], args[1]); err != nil {
					return err
				}
			}

			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			out := cmd.OutOrStdout()
			if len(args) == 2 {
				res, err := app.Monitor.CheckTarget(cmd.Context(), key)
				if err != nil {
					return err
				}
				printResult(out, res)
				return resultErr(res)
			}

			report, err := app.Monitor.CheckNow(cmd.Context())
			if err != nil {
				return err
			}
			if len(report.Results) == 0 {
				fmt.Fprintln(out, "No targets.")
				return nil
			}
			for _, res := range report.Results {
				printResult(out, res)
			}
			failed := report.Count(application.OutcomeFetchFailed) + report.Count(application.OutcomeStoreFailed)
			if failed > 0 {
				return fmt.Errorf("%d of %d targets failed", failed, len(report.Results))
			}
			return nil
		},
	}
}

func printResult(w io.Writer, res application.TargetResult) {
	var outcome string
	switch res.Outcome {
	case application.OutcomeNotified:
		outcome = color.GreenString("%-12s", res.Outcome)
	case application.OutcomeUnchanged:
		outcome = color.New(color.Faint).Sprintf("%-12s", res.Outcome)
	case application.OutcomeFetchFailed, application.OutcomeStoreFailed:
		outcome = color.RedString("%-12s", res.Outcome)
	default:
		outcome = color.YellowString("%-12s", res.Outcome)
	}

	line := fmt.Sprintf("  %s %s", outcome, res.Target)
	if res.RunID != 0 {
		line += fmt.Sprintf(" run #%d", res.RunID)
	}
	if res.Err != nil {
		line += ": " + res.Err.Error()
	}
	fmt.Fprintln(w, line)
}

func resultErr(res application.TargetResult) error {
	if res.Err != nil {
		return fmt.Errorf("%s: %s", res.Target, res.Outcome)
	}
	return nil
}
