package cli

import (
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adeilh/taskgate/api"
	"github.com/adeilh/taskgate/httpx"
)

var (
	usersToken string
	usersRoles []string
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Administer registered users on a server",
}

var usersRolesCmd = &cobra.Command{
	Use:   "roles <email>",
	Short: "Replace the roles of a user (ADMIN only)",
	Long: `Calls PUT /v1/users/:email/roles. Tokens already issued keep their old roles
until they are refreshed or expire.`,
	Example: `  taskgate users roles a@example.com --role USER --role ADMIN --token $TOKEN`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		var out api.RolesResponse
		path := "/v1/users/" + url.PathEscape(args[0]) + "/roles"
		body := map[string][]string{"roles": usersRoles}
		if _, err := cli.Put(cmd.Context(), path, body, &out, httpx.WithBearer(usersToken)); err != nil {
			return err
		}
		log.Info().Msgf("Roles of %s set to %s", out.Email, strings.Join(out.Roles, ","))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersRolesCmd)

	usersCmd.PersistentFlags().StringVar(&usersToken, "token", "", "Bearer token")
	_ = usersCmd.MarkPersistentFlagRequired("token")

	usersRolesCmd.Flags().StringSliceVar(&usersRoles, "role", nil, "role to grant (repeatable)")
	_ = usersRolesCmd.MarkFlagRequired("role")
}
