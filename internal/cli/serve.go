package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adeilh/taskgate/api"
	"github.com/adeilh/taskgate/auth"
	redisstore "github.com/adeilh/taskgate/cache/redis"
	"github.com/adeilh/taskgate/config"
	"github.com/adeilh/taskgate/db/sql/postgres"
	"github.com/adeilh/taskgate/httpx"
	"github.com/adeilh/taskgate/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the taskgate server",
	Long: `Starts the HTTP server. Users are stored in PostgreSQL; when redis.addr is
set, directory lookups are cached in Redis and rate limit statistics can be
aggregated there (ratelimit.stats.redis).`,
	Example: `  TASKGATE_JWT_SECRET=... taskgate serve --dsn postgres://localhost/taskgate?sslmode=disable`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return err
		}
		if err := cfg.ValidateServe(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		log.Info().Msg("Connecting to PostgreSQL...")
		db, err := postgres.Open(ctx,
			postgres.WithDSN(cfg.Database.DSN),
			postgres.WithMaxOpenConns(cfg.Database.MaxOpenConns),
		)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := postgres.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrating user schema: %w", err)
		}
		users := postgres.NewUserRepository(db)

		var directory auth.Directory = users
		var invalidator auth.DirectoryInvalidator
		var stats ratelimit.StatsBackend = ratelimit.NewMemoryStatsStore(
			ratelimit.WithMemoryTrackKeys(cfg.RateLimit.Stats.TrackKeys),
			ratelimit.WithMemoryMaxEntries(cfg.RateLimit.Stats.MaxEntries),
		)
		if cfg.Redis.Enabled() {
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Connecting to Redis...")
			store := redisstore.NewStore(redisstore.Options{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
				Prefix:   "taskgate",
			})
			defer store.Close()
			if err := store.Ping(ctx); err != nil {
				return err
			}
			if cfg.Directory.CacheTTL > 0 {
				cached := auth.NewCachedDirectory(users, store, cfg.Directory.CacheTTL)
				directory, invalidator = cached, cached
			}
			if cfg.RateLimit.Stats.Redis {
				stats = ratelimit.NewRedisStatsStore(store.Client(),
					ratelimit.WithStatsPrefix("taskgate:ratelimit:stats"),
					ratelimit.WithStatsTrackKeys(cfg.RateLimit.Stats.TrackKeys),
				)
			}
		}

		tokens, err := auth.NewTokenService(cfg.JWT.TokenConfig())
		if err != nil {
			return err
		}
		limiter, err := ratelimit.New(cfg.RateLimit.LimiterConfig(), ratelimit.WithLogger(log.Logger))
		if err != nil {
			return err
		}
		userService, err := auth.NewUserService(auth.UserServiceConfig{
			Store:               users,
			Hasher:              auth.NewBcryptHasher(),
			Tokens:              tokens,
			SelfAssignableRoles: cfg.Registration.Roles,
			Invalidator:         invalidator,
		})
		if err != nil {
			return err
		}
		refresh, err := auth.NewRefreshFlow(tokens, directory, nil)
		if err != nil {
			return err
		}
		gate, err := auth.NewGate(tokens, limiter,
			auth.WithDirectory(directory),
			auth.WithStats(stats),
			auth.WithSkipper(api.SkipHealth),
		)
		if err != nil {
			return err
		}

		srv := api.NewServer(
			&api.Handler{Users: userService, Refresh: refresh, Limiter: limiter, Stats: stats},
			gate,
			httpx.WithAddress(cfg.Server.Address),
			httpx.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout),
			httpx.WithCORS(api.CORSConfig(cfg.Server.CORS.AllowedOrigins, cfg.Server.CORS.AllowedMethods)),
			httpx.WithLogger(log.Logger),
		)

		lc := limiter.Config()
		log.Info().
			Int64("capacity", lc.Capacity).
			Int64("refill_tokens", lc.RefillTokens).
			Dur("refill_interval", lc.RefillInterval).
			Str("strategy", string(lc.Strategy)).
			Msgf("Starting server on %s...", srv.Address())

		if err := srv.Start(ctx, httpx.WithShutdownTimeout(cfg.Server.ShutdownTimeout)); err != nil {
			return err
		}
		log.Info().Msg("Server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "address to listen on")
	_ = viper.BindPFlag(config.ServerAddressKey, serveCmd.Flags().Lookup("addr"))

	serveCmd.Flags().String("dsn", "", "PostgreSQL connection string")
	_ = viper.BindPFlag(config.DatabaseDSNKey, serveCmd.Flags().Lookup("dsn"))

	serveCmd.Flags().String("redis", "", "Redis address for the directory cache and statistics")
	_ = viper.BindPFlag(config.RedisAddrKey, serveCmd.Flags().Lookup("redis"))
}
