package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"slidewright/internal/api"
	"slidewright/internal/config"
)

const defaultAPIAddress = "127.0.0.1:7490"

// globalFlags holds the persistent flags shared by every subcommand.
type globalFlags struct {
	config string
	api    string
	token  string
}

type commandContext struct {
	flags globalFlags

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.flags.config))
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// apiAddress prefers --api, then the configured bind address.
func (c *commandContext) apiAddress() string {
	if value := strings.TrimSpace(c.flags.api); value != "" {
		return value
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil && cfg.Paths.APIBind != "" {
		return cfg.Paths.APIBind
	}
	return defaultAPIAddress
}

func (c *commandContext) apiToken() string {
	if value := strings.TrimSpace(c.flags.token); value != "" {
		return value
	}
	if cfg, err := c.ensureConfig(); err == nil && cfg != nil {
		return cfg.Paths.APIToken
	}
	return ""
}

func (c *commandContext) client() *api.Client {
	return api.NewClient(c.apiAddress(), api.WithToken(c.apiToken()))
}

// withClient runs fn against the daemon API and turns connection failures
// into an actionable message.
func (c *commandContext) withClient(fn func(*api.Client) error) error {
	err := fn(c.client())
	if err == nil {
		return nil
	}
	return wrapDialError(err, c.apiAddress())
}

func wrapDialError(err error, address string) error {
	var opErr *net.OpError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: %s refused the connection; start it with `slidewright serve`", address)
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("connect to daemon at %s: %w", address, err)
	default:
		return err
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

// configureColors disables ANSI styling when stdout is not a terminal.
func configureColors() {
	fd := os.Stdout.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		text.EnableColors()
		return
	}
	text.DisableColors()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
