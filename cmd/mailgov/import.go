package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/config"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/handoff"
)

func newImportInputCmd(withConfig configRunner) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "import-input <people.json>",
		Short: "Build the hand-off file from a directory export of tagged people",
		Long: "Reads a JSON array of {id, firstName, lastName, email, tags} and writes the hand-off file.\n" +
			"People without a mailbox tag, or with both tags, are skipped.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(func(cfg *config.Config, log *zap.Logger) error {
				data, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("read people: %w", err)
				}
				var people []handoff.Person
				if err := json.Unmarshal(data, &people); err != nil {
					return fmt.Errorf("decode people: %w", err)
				}

				tags := handoff.TagSet{Mailbox: cfg.Tags.Mailbox, Forwarding: cfg.Tags.ForwardingMailbox}
				records := make([]handoff.Record, 0, len(people))
				for _, p := range people {
					rec, err := tags.NewRecord(p)
					if err != nil {
						log.Warn("skipping person", zap.String("id", string(p.ID)), zap.Error(err))
						continue
					}
					records = append(records, rec)
				}

				path := out
				if path == "" {
					path = cfg.Input.Path
				}
				if err := handoff.NewWriter().Write(path, records); err != nil {
					return err
				}
				log.Info("hand-off file written", zap.String("path", path), zap.Int("records", len(records)))
				return printJSON(cmd.OutOrStdout(), map[string]any{"path": path, "records": len(records), "skipped": len(people) - len(records)})
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (defaults to input.path)")
	return cmd
}
