// Package cli implements the taskgate command line: the server and a small
// client for the user and rate limit endpoints.
package cli

import (
	"errors"
	"os"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/adeilh/taskgate/config"
	"github.com/adeilh/taskgate/logging"
)

// global flags
var cfgFile string

// ServerURLKey is where client commands send requests.
const ServerURLKey = "client.server"

var rootCmd = &cobra.Command{
	Use:   "taskgate",
	Short: "JWT gateway with per-subject rate limiting",
	Long: `taskgate registers and authenticates users, issues HMAC-signed bearer
tokens and rate limits every bearer-carrying request by token subject.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configPath, configErr := initConfig()
		if err := logging.Init(logging.Options{
			Level:   viper.GetString(config.LogLevelKey),
			Format:  viper.GetString(config.LogFormatKey),
			NoColor: viper.GetBool(config.LogNoColorKey),
		}); err != nil {
			return err
		}
		if viper.GetBool(config.LogNoColorKey) {
			color.NoColor = true
		}
		if configErr != nil { // handle error after logging is initialized
			return configErr
		}
		if configPath != "" {
			log.Debug().Msgf("using config file: %s", configPath)
		}
		return nil
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execution failed")
	}
}

func init() {
	// setup pre-flag logger
	logging.InitDefault()

	config.SetDefaults(viper.GetViper())
	viper.SetDefault(ServerURLKey, "http://localhost:8080")

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"Configuration file (default is ./taskgate.yaml or $HOME/.taskgate.yaml)")

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = viper.BindPFlag(config.LogLevelKey, rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.PersistentFlags().String("log-format", "console", "Log format (console, json)")
	_ = viper.BindPFlag(config.LogFormatKey, rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("no-color", false, "Disable color output")
	_ = viper.BindPFlag(config.LogNoColorKey, rootCmd.PersistentFlags().Lookup("no-color"))

	rootCmd.PersistentFlags().String("server", "", "Base URL of a running taskgate server")
	_ = viper.BindPFlag(ServerURLKey, rootCmd.PersistentFlags().Lookup("server"))

	config.BindEnv(viper.GetViper())

	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
}

func initConfig() (string, error) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// search order: current dir, $HOME, XDG config
		viper.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		if dir, err := os.UserConfigDir(); err == nil {
			viper.AddConfigPath(dir + "/taskgate")
		}
		viper.SetConfigType("yaml")
		viper.SetConfigName("taskgate")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return "", err
		}
		return "", nil
	}
	return viper.ConfigFileUsed(), nil
}
