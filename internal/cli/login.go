package cli

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adeilh/taskgate/httpx"
)

var (
	loginEmail    string
	loginPassword string
	refreshToken  string
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate against a server and print the issued token",
	Example: `  taskgate login --server http://localhost:8080 --email a@example.com --password secret1
  export TOKEN=$(taskgate login --email a@example.com --password secret1)`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		resp, err := cli.Post(cmd.Context(), "/user/authenticate", map[string]string{
			"email":    loginEmail,
			"password": loginPassword,
		}, nil)
		if err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
		token, err := bearerFrom(resp.Header().Get("Authorization"))
		if err != nil {
			return err
		}
		log.Info().Msg(resp.String())
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Exchange a valid token for a new one with a fresh expiry",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		resp, err := cli.Post(cmd.Context(), "/user/refresh", nil, nil, httpx.WithBearer(refreshToken))
		if err != nil {
			return fmt.Errorf("refresh failed: %w", err)
		}
		token, err := bearerFrom(resp.Header().Get("Authorization"))
		if err != nil {
			return err
		}
		log.Info().Msgf("Refreshed token for %s", resp.String())
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(refreshCmd)

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password")
	_ = loginCmd.MarkFlagRequired("email")
	_ = loginCmd.MarkFlagRequired("password")

	refreshCmd.Flags().StringVar(&refreshToken, "token", "", "Current bearer token")
	_ = refreshCmd.MarkFlagRequired("token")
}
