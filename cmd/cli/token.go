package main

import (
	"errors"
	"querypilot-ai/config"
	"querypilot-ai/internal/utils"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API token signed with JWT_SECRET",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := config.LoadEnv()
		if err != nil {
			return err
		}
		if env.JWTSecret == "" {
			return errors.New("JWT_SECRET is not set, the API does not require tokens")
		}

		token, err := utils.NewJWTService(env.JWTSecret, tokenTTL).GenerateToken(tokenSubject)
		if err != nil {
			return err
		}

		pterm.Info.Printf("Token for %q, valid for %s\n", tokenSubject, tokenTTL)
		pterm.Println(*token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "querypilot-client", "Subject claim of the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
}
