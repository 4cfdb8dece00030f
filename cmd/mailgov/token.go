package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	jwtpkg "github.com/EfG-Haigerseelbach/ct-plesk-email/internal/auth/jwt"
	"github.com/EfG-Haigerseelbach/ct-plesk-email/internal/config"
)

func newTokenCmd(withConfig configRunner) *cobra.Command {
	var operator string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an operator token for the mutating API routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withConfig(func(cfg *config.Config, log *zap.Logger) error {
				if err := cfg.ValidateServer(); err != nil {
					return err
				}
				tok, err := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Expiry).Issue(operator)
				if err != nil {
					return err
				}
				log.Info("operator token issued", zap.String("operator", operator), zap.Time("expires_at", tok.ExpiresAt))
				return printJSON(cmd.OutOrStdout(), tok)
			})
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded in the token")
	_ = cmd.MarkFlagRequired("operator")
	return cmd
}
