package main

import (
	"encoding/json"

	"github.com/KevinKickass/cangen/internal/document"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newEnrichCmd() *cobra.Command {
	var databaseName, mappingName string

	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fill in a mapping's signals from a signal database",
		Long: `Looks up every message of a mapping in a CANoe XML or DBC database and
writes the mapping's messages, completed with bit positions, sizes, scaling
and value tables, as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer s.close()

			messages, missing, err := s.compiler.Enrich(databaseName, mappingName)
			if err != nil {
				return err
			}
			for _, id := range missing {
				s.logger.Warn("Message not found in database",
					zap.String("id", id),
					zap.String("database", databaseName))
			}

			data, err := json.MarshalIndent(document.Mapping(map[string]document.Value{
				"messages": messages,
			}), "", "    ")
			if err != nil {
				return err
			}

			out, err := openOutput(cmd, s.cfg.Output)
			if err != nil {
				return err
			}
			if _, err := out.Write(append(data, '\n')); err != nil {
				out.Close()
				return err
			}
			return out.Close()
		},
	}

	cmd.Flags().StringVar(&databaseName, "database", "", "CANoe XML or DBC signal database")
	cmd.Flags().StringVar(&mappingName, "mapping", "", "mapping document to enrich")
	cmd.Flags().StringSliceP("search-paths", "s", nil, "directories searched for documents, in order")
	cmd.Flags().StringP("output", "o", "-", "output file, - for stdout")
	_ = cmd.MarkFlagRequired("database")
	_ = cmd.MarkFlagRequired("mapping")

	return cmd
}
