package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/config"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/domain"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/handoff"
)

func newReconcileCmd(withApp appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Run one reconciliation pass and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				runCtx, cancel := a.runContext(ctx)
				defer cancel()

				rec, err := a.runs.Run(runCtx, domain.TriggerCLI)
				a.waitDetached()
				if rec != nil && rec.Result != nil {
					if perr := printJSON(cmd.OutOrStdout(), rec.Result); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
}

func newCheckInputCmd(withConfig configRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "check-input",
		Short: "Parse the hand-off file and print the identities it yields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConfig(func(cfg *config.Config, log *zap.Logger) error {
				reader := handoff.NewReader(cfg.Input.Path, handoff.TagSet{
					Mailbox:    cfg.Tags.Mailbox,
					Forwarding: cfg.Tags.ForwardingMailbox,
				}, log.Named("input"))

				identities, err := reader.Load(cmd.Context())
				if errors.Is(err, handoff.ErrNoInput) {
					return fmt.Errorf("%s: %w", reader.Path(), err)
				}
				if err != nil {
					return err
				}

				type row struct {
					ID      domain.IdentityID  `json:"id"`
					Kind    domain.MailboxKind `json:"kind"`
					Address string             `json:"address"`
					Target  string             `json:"targetEmail"`
					Problem string             `json:"problem,omitempty"`
				}
				rows := make([]row, 0, len(identities))
				for _, id := range identities {
					r := row{ID: id.ID, Kind: id.Kind, Address: id.EmailAddress(cfg.Mailbox.Domain), Target: id.TargetEmail}
					if err := id.Validate(cfg.Mailbox.Domain); err != nil {
						r.Problem = err.Error()
					}
					rows = append(rows, r)
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}
}
