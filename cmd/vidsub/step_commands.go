package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vidsub/internal/navigation"
	"vidsub/internal/workflow"
)

func newStepCommands(ctx *commandContext) []*cobra.Command {
	return []*cobra.Command{
		newGotoCommand(ctx),
		newNextCommand(ctx),
		newResetCommand(ctx),
		newClearCommand(ctx),
	}
}

func newGotoCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "goto <step|/step-N>",
		Short: "Jump to a step by number, name or path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := stepPath(args[0])
			if err != nil {
				return err
			}
			return ctx.withSession(cmd.Context(), func(s *session) error {
				guard := navigation.NewGuard(s.store, s.logger)
				requested, _ := navigation.ParsePath(path)
				now := guard.Enter(path)
				if now != requested {
					return fmt.Errorf("step %s is not accessible yet under the %s policy; complete %s first",
						requested, s.store.Policy(), requested-1)
				}
				shown, _ := guard.Reconcile(path)
				fmt.Fprintf(cmd.OutOrStdout(), "Now at %s (%s)\n", now, shown)
				return nil
			})
		},
	}
}

// stepPath turns a number, name or /step-N path into a canonical path.
func stepPath(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if strings.HasPrefix(arg, "/") {
		step, ok := navigation.ParsePath(arg)
		if !ok {
			return "", fmt.Errorf("invalid step path %q", arg)
		}
		return navigation.PathFor(step), nil
	}
	step, err := workflow.ParseStep(strings.ToLower(arg))
	if err != nil {
		return "", err
	}
	return navigation.PathFor(step), nil
}

func newNextCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "next",
		Short: "Complete the current step and move to the next one",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				current := s.store.CurrentStep()
				next, ok := s.store.ProceedToNext()
				if !ok {
					if _, has := current.Next(); !has {
						return fmt.Errorf("%s has no next step", current)
					}
					return fmt.Errorf("%s is not finished; its output is missing", current)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Completed %s, now at %s\n", current, next)
				return nil
			})
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return to the first step and drop every artifact",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				s.store.ResetWorkflow()
				fmt.Fprintln(cmd.OutOrStdout(), "Workflow reset")
				return nil
			})
		},
	}
}

func newClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the persisted workflow snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd.Context(), func(s *session) error {
				s.store.Clear(cmd.Context())
				fmt.Fprintln(cmd.OutOrStdout(), "Saved workflow state cleared")
				return nil
			})
		},
	}
}
