package main

import (
	"fmt"
	"io"

	"github.com/KevinKickass/cangen/internal/report"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var in inputFlags

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Validate message sets and print the issue report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			names, err := in.names(s.compiler)
			if err != nil {
				return err
			}

			res, err := s.compiler.Check(names)
			if res != nil {
				printReport(cmd.OutOrStdout(), res.Report)
			}
			return err
		},
	}

	in.register(cmd)

	return cmd
}

var (
	errorLabel   = color.New(color.FgRed, color.Bold).SprintFunc()
	warningLabel = color.New(color.FgYellow, color.Bold).SprintFunc()
	codeLabel    = color.New(color.FgCyan).SprintFunc()
	faint        = color.New(color.Faint).SprintFunc()
	okLabel      = color.New(color.FgGreen, color.Bold).SprintFunc()
)

func printReport(w io.Writer, rep *report.Report) {
	for _, i := range rep.Errors {
		printIssue(w, errorLabel("error"), i)
	}
	for _, i := range rep.Warnings {
		printIssue(w, warningLabel("warning"), i)
	}

	switch {
	case !rep.Valid:
		fmt.Fprintf(w, "%s %d error(s), %d warning(s)\n", errorLabel("FAILED"), len(rep.Errors), len(rep.Warnings))
	default:
		fmt.Fprintf(w, "%s %d warning(s)\n", okLabel("OK"), len(rep.Warnings))
	}
}

func printIssue(w io.Writer, label string, i report.Issue) {
	fmt.Fprintf(w, "%s %s %s", label, codeLabel(i.Code), i.Message)
	if i.MessageSet != "" || i.Path != "" {
		fmt.Fprintf(w, " %s", faint(fmt.Sprintf("[%s%s]", i.MessageSet, i.Path)))
	}
	fmt.Fprintln(w)
	if i.Hint != "" {
		fmt.Fprintf(w, "    %s %s\n", faint("hint:"), i.Hint)
	}
}
