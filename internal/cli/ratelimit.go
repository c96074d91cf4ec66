package cli

import (
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/adeilh/taskgate/api"
	"github.com/adeilh/taskgate/httpx"
	"github.com/adeilh/taskgate/ratelimit"
)

var ratelimitToken string

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Inspect and reset rate limit buckets on a server",
}

var ratelimitStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the bucket of the token's subject",
	Long: `Calls GET /v1/ratelimit. The call itself consumes a token from the bucket it
reports on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		var status api.RateLimitResponse
		if _, err := cli.Get(cmd.Context(), "/v1/ratelimit", &status, httpx.WithBearer(ratelimitToken)); err != nil {
			return err
		}

		bold := color.New(color.Bold).SprintFunc()
		faint := color.New(color.Faint).SprintfFunc()

		available := fmt.Sprintf("%d / %d", status.Available, status.Capacity)
		if status.Available < status.TokensPerRequest {
			available = color.RedString(available)
		}

		t := newTable(cmd.OutOrStdout())
		t.AppendHeader(table.Row{"Key", "Available", "Refill", "Strategy", "Retry After"})
		t.AppendRow(table.Row{
			bold(status.Key),
			available,
			fmt.Sprintf("%d every %gs", status.RefillTokens, status.RefillSeconds),
			status.Strategy,
			faint("%gs", status.RetryAfterSeconds),
		})
		t.Render()
		return nil
	},
}

var ratelimitClearCmd = &cobra.Command{
	Use:   "clear [key]",
	Short: "Reset one bucket, or every bucket when no key is given (ADMIN only)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		path := "/v1/ratelimit/buckets"
		if len(args) == 1 {
			path += "/" + url.PathEscape(args[0])
		}
		if _, err := cli.Delete(cmd.Context(), path, nil, httpx.WithBearer(ratelimitToken)); err != nil {
			return err
		}
		if len(args) == 1 {
			log.Info().Msgf("Cleared bucket %s", args[0])
		} else {
			log.Info().Msg("Cleared all buckets")
		}
		return nil
	},
}

var ratelimitStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show admission counters per route, and per key when tracked (ADMIN only)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cli, err := getClient()
		if err != nil {
			return err
		}

		var snap ratelimit.StatsSnapshot
		if _, err := cli.Get(cmd.Context(), "/v1/ratelimit/stats", &snap, httpx.WithBearer(ratelimitToken)); err != nil {
			return err
		}

		renderCounters(cmd.OutOrStdout(), "Route", snap.Routes, snap.Total)
		if len(snap.Keys) > 0 {
			renderCounters(cmd.OutOrStdout(), "Key", snap.Keys, snap.Total)
		}
		return nil
	},
}

func renderCounters(out io.Writer, label string, rows map[string]ratelimit.Counters, total ratelimit.Counters) {
	t := newTable(out)
	t.AppendHeader(table.Row{label, "Allowed", "Denied"})
	for _, name := range slices.Sorted(maps.Keys(rows)) {
		c := rows[name]
		denied := fmt.Sprint(c.Denied)
		if c.Denied > 0 {
			denied = color.RedString(denied)
		}
		t.AppendRow(table.Row{name, c.Allowed, denied})
	}
	t.AppendFooter(table.Row{"Total", total.Allowed, total.Denied})
	t.Render()
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)
	ratelimitCmd.AddCommand(ratelimitStatusCmd)
	ratelimitCmd.AddCommand(ratelimitClearCmd)
	ratelimitCmd.AddCommand(ratelimitStatsCmd)

	ratelimitCmd.PersistentFlags().StringVar(&ratelimitToken, "token", "", "Bearer token")
	_ = ratelimitCmd.MarkPersistentFlagRequired("token")
}
