package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/viper"

	"github.com/adeilh/taskgate/auth"
	"github.com/adeilh/taskgate/config"
	"github.com/adeilh/taskgate/httpx"
)

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return config.Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// localTokens builds a TokenService from the configured jwt section, for
// commands that work without a server.
func localTokens() (*auth.TokenService, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return auth.NewTokenService(cfg.JWT.TokenConfig())
}

func getClient() (*httpx.Client, error) {
	server := strings.TrimRight(viper.GetString(ServerURLKey), "/")
	if server == "" {
		return nil, fmt.Errorf("server address not configured, provide via --server or env")
	}
	return httpx.NewClient(httpx.WithBaseURL(server)), nil
}

// bearerFrom returns the token of an Authorization response header.
func bearerFrom(header string) (string, error) {
	token, err := auth.BearerToken(header)
	if err != nil {
		return "", fmt.Errorf("server returned no bearer token: %w", err)
	}
	return token, nil
}

func newTable(out io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	s := table.StyleRounded
	s.Format.Header = text.FormatDefault
	s.Format.Footer = text.FormatDefault
	t.SetStyle(s)
	return t
}
