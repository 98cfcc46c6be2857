package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"statwatch/internal/config"
	"statwatch/internal/services"
)

var tokenUser string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a signed dashboard token",
	Long:  "Mints a token for the HTTP API (Authorization: Bearer) and the websocket channel (/ws?token=).",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		auth := services.NewAuthService(cfg.Auth.Secret, cfg.Auth.TokenExpiry, zap.NewNop())
		token, err := auth.GenerateToken(tokenUser)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, token)
		fmt.Fprintf(out, "expires: %s\n", auth.TokenExpiry().Format("2006-01-02 15:04:05"))
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenUser, "user", "u", "dashboard", "user name embedded in the token")
}
