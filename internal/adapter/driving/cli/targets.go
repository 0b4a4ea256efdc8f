package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ericfisherdev/actionwatch/internal/adapter/driven/targetfile"
	"github.com/ericfisherdev/actionwatch/internal/domain/model"
)

func newTargetsCmd(opts Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "targets",
		Aliases: []string{"target"},
		Short:   "Manage the watch list",
	}
	cmd.AddCommand(
		newTargetsAddCmd(opts),
		newTargetsRemoveCmd(opts),
		newTargetsListCmd(opts),
		newTargetsFindCmd(opts),
		newTargetsImportCmd(opts),
	)
	return cmd
}

func newTargetsAddCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <owner/repo> <branch>",
		Short: "Watch a repository branch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			target, err := app.Targets.Add(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			_, _ = color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Watching %s\n", target.Key)
			return nil
		},
	}
}

func newTargetsRemoveCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:     "remove <owner/repo> <branch>",
		Aliases: []string{"rm"},
		Short:   "Stop watching a repository branch",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := model.ParseTargetKey(args[0], args[1])
			if err != nil {
				return err
			}

			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			if err := app.Targets.Remove(cmd.Context(), key); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped watching %s\n", key)
			return nil
		},
	}
}

func newTargetsListCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List watched targets and their last notified run",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			targets, err := app.Targets.List(cmd.Context())
			if err != nil {
				return err
			}
			printTargets(cmd.OutOrStdout(), targets)
			return nil
		},
	}
}

func newTargetsFindCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "find <query>",
		Short: "Fuzzy-search the watch list",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			targets, err := app.Targets.Find(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			printTargets(cmd.OutOrStdout(), targets)
			return nil
		},
	}
}

func newTargetsImportCmd(opts Options) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Add every target listed in a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys, err := targetfile.Load(args[0])
			if err != nil {
				return err
			}

			app, err := openApp(cmd, opts)
			if err != nil {
				return err
			}
			defer closeApp(app)

			res, err := app.Targets.Import(cmd.Context(), keys)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d targets (%d already watched)\n", res.Added, res.Skipped)
			return nil
		},
	}
}

func printTargets(w io.Writer, targets []model.WatchTarget) {
	if len(targets) == 0 {
		fmt.Fprintln(w, "No targets.")
		return
	}
	for _, t := range targets {
		state := color.New(color.Faint).Sprint("no run yet")
		if s := t.LastKnownState; s != nil {
			state = fmt.Sprintf("#%d %s", s.RunID, runLabel(s.Status, s.Conclusion))
		}
		fmt.Fprintf(w, "  %-50s %s\n", t.Key, state)
	}
}

// runLabel colors the conclusion, or the status while the run is unfinished.
func runLabel(status model.RunStatus, conclusion model.RunConclusion) string {
	switch conclusion {
	case model.RunConclusionSuccess:
		return color.GreenString(string(conclusion))
	case model.RunConclusionFailure, model.RunConclusionTimedOut, model.RunConclusionActionRequired:
		return color.RedString(string(conclusion))
	case model.RunConclusionNone:
		return color.CyanString(string(status))
	default:
		return color.YellowString(string(conclusion))
	}
}
