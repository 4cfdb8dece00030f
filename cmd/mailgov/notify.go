package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/config"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/notify"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/service"
)

func newNotifyTestCmd(withConfig configRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "notify-test <recipient>",
		Short: "Send a test mail to check the SMTP configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withConfig(func(cfg *config.Config, log *zap.Logger) error {
				sender, err := newSender(cfg, log.Named("notify"), true)
				if err != nil {
					return err
				}
				s := service.NewNotificationService(sender, notify.DefaultTemplates(), nil, log.Named("notify"))
				if err := s.SendTest(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "test mail sent to %s\n", args[0])
				return nil
			})
		},
	}
}
