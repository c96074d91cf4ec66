package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/adeilh/taskgate/auth"
)

var (
	tokenIssueSubject string
	tokenIssueRoles   []string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue and inspect tokens locally with the configured secret",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token without contacting a server",
	Long: `Signs a token with jwt.secret, as the server would after a successful login.
No directory lookup happens, so a server with a directory rejects tokens for
unknown subjects.`,
	Example: `  taskgate token issue --subject a@example.com --role ADMIN`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := localTokens()
		if err != nil {
			return err
		}
		token, err := tokens.Issue(tokenIssueSubject, map[string]string{
			"role": auth.NewRoleSet(tokenIssueRoles...).String(),
		}, time.Now())
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

var tokenInspectCmd = &cobra.Command{
	Use:   "inspect <token>",
	Short: "Decode a token and check it against the configured secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tokens, err := localTokens()
		if err != nil {
			return err
		}
		raw := strings.TrimSpace(strings.TrimPrefix(args[0], "Bearer "))

		claims, err := tokens.ExtractClaims(raw)
		if err != nil {
			return fmt.Errorf("decoding token: %w", err)
		}

		now := time.Now()
		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintfFunc()

		verdict := color.GreenString("valid")
		if _, err := tokens.Validate(raw, now); err != nil {
			verdict = color.RedString(err.Error())
		}

		expires := claims.ExpiresAt.Format(time.RFC3339)
		if left := claims.ExpiresAt.Sub(now).Round(time.Second); left > 0 {
			expires += " " + faint("(in %s)", left)
		} else {
			expires += " " + faint("(%s ago)", -left)
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Claim", "Value"})
		t.AppendRows([]table.Row{
			{"Subject", bold(claims.Subject)},
			{"Roles", strings.Join(claims.Roles, ", ")},
			{"Authorities", strings.Join(claims.Roles.Authorities(), ", ")},
			{"Issuer", claims.Issuer},
			{"Audience", strings.Join(claims.Audience, ", ")},
			{"ID", faint("%s", claims.ID)},
			{"Algorithm", claims.Algorithm},
			{"Issued", claims.IssuedAt.Format(time.RFC3339)},
			{"Expires", expires},
		})
		for k, v := range claims.Extra {
			t.AppendRow(table.Row{k, v})
		}
		t.AppendFooter(table.Row{"Verdict", verdict})
		t.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenInspectCmd)

	tokenIssueCmd.Flags().StringVar(&tokenIssueSubject, "subject", "", "Token subject (the user's email)")
	tokenIssueCmd.Flags().StringSliceVar(&tokenIssueRoles, "role", []string{auth.DefaultRole}, "Role to grant, repeatable")
	_ = tokenIssueCmd.MarkFlagRequired("subject")
}
