package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newGenerateCmd() *cobra.Command {
	var in inputFlags

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate the firmware signal source",
		Long: `Loads, validates and compiles the given message sets into a single C++
source file written to stdout or --output.`,
		Args: cobra.NoArgs,
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

			res, err := s.compiler.CompileMessageSets(names)
			if err != nil {
				if res != nil {
					printReport(cmd.ErrOrStderr(), res.Report)
				}
				return err
			}

			out, err := openOutput(cmd, s.cfg.Output)
			if err != nil {
				return err
			}
			if err := res.Document.Render(out); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}

			s.logger.Info("Source written",
				zap.String("output", s.cfg.Output),
				zap.String("fingerprint", res.Document.Fingerprint),
				zap.Int("warnings", len(res.Report.Warnings)))
			return nil
		},
	}

	in.register(cmd)
	cmd.Flags().StringP("output", "o", "-", "output file, - for stdout")

	return cmd
}
