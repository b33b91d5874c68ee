package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"shelfarr/internal/config"
	"shelfarr/internal/daemonctl"
	"shelfarr/internal/ipc"
)

// skipConfigLoad marks commands (and their children) that must work without a
// loadable configuration.
var skipConfigLoad = map[string]string{"skipConfigLoad": "true"}

// commandContext carries the persistent flags and the lazily loaded config.
type commandContext struct {
	socket     string
	configFile string
	json       bool

	loadOnce sync.Once
	cfg      *config.Config
	loadErr  error
}

func (c *commandContext) bindFlags(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVar(&c.socket, "socket", "", "Path to the shelfarr daemon socket")
	flags.StringVarP(&c.configFile, "config", "c", "", "Configuration file path")
	flags.BoolVar(&c.json, "json", false, "Emit JSON instead of tables where supported")
}

func (c *commandContext) configPath() string { return strings.TrimSpace(c.configFile) }

// JSONMode reports whether --json was requested.
func (c *commandContext) JSONMode() bool { return c.json }

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.loadOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err == nil {
			err = cfg.EnsureDirectories()
		}
		if err != nil {
			c.loadErr = err
			return
		}
		c.cfg = cfg
	})
	return c.cfg, c.loadErr
}

// configValue is ensureConfig for callers that tolerate a missing config.
func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

// socketPath resolves --socket, then the configured state dir, then the
// default state dir.
func (c *commandContext) socketPath() string {
	if socket := strings.TrimSpace(c.socket); socket != "" {
		return socket
	}
	if cfg := c.configValue(); cfg != nil {
		return cfg.SocketPath()
	}
	defaults := config.Default()
	if dir, err := config.ExpandPath(defaults.Paths.StateDir); err == nil && dir != "" {
		return filepath.Join(dir, "shelfarr.sock")
	}
	return filepath.Join(os.TempDir(), "shelfarr.sock")
}

func (c *commandContext) launchOptions(logLevel string) daemonctl.LaunchOptions {
	return daemonctl.LaunchOptions{
		SocketPath: strings.TrimSpace(c.socket),
		ConfigPath: c.configPath(),
		LogLevel:   strings.TrimSpace(logLevel),
	}
}

func (c *commandContext) withClient(fn func(*ipc.Client) error) error {
	socket := c.socketPath()
	client, err := ipc.Dial(socket)
	if err != nil {
		return dialError(err, socket)
	}
	defer client.Close()
	return fn(client)
}

func dialError(err error, socket string) error {
	switch {
	case errors.Is(err, syscall.ENOENT), errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("connect to daemon: socket %s not found; start the daemon with `shelfarr start`", socket)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("connect to daemon: socket %s refused the connection; verify the daemon is running", socket)
	}
	return fmt.Errorf("connect to daemon: %w", err)
}

func skipsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		if cmd.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
