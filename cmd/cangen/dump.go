package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newDumpCmd() *cobra.Command {
	var (
		in     inputFlags
		format string
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Print the validated message set model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "json" {
				return fmt.Errorf("unknown format %q, use yaml or json", format)
			}

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
			if err != nil {
				if res != nil {
					printReport(cmd.ErrOrStderr(), res.Report)
				}
				return err
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res.Sets)
			}

			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(res.Sets); err != nil {
				return err
			}
			return enc.Close()
		},
	}

	in.register(cmd)
	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml or json")

	return cmd
}
