package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"shelfarr/internal/app"
	"shelfarr/internal/config"
	"shelfarr/internal/daemon"
	"shelfarr/internal/indexer"
	"shelfarr/internal/ipc"
	"shelfarr/internal/preflight"
	"shelfarr/internal/queue"
	"shelfarr/internal/testsupport"
	"shelfarr/internal/workflow"
)

type emptyIndexer struct{}

func (emptyIndexer) Search(context.Context, queue.MediaKind, []string) ([]indexer.Result, error) {
	return nil, nil
}

func (emptyIndexer) Fetch(context.Context, indexer.Ref) ([]byte, error) {
	return nil, nil
}

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	daemon     *daemon.Daemon
	socketPath string
	configPath string
}

// setupCLITestEnv writes a config file and serves a stopped daemon over IPC.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg"))
	cfg.Paths.APIBind = ""
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	appCtx := app.New(cfg, store, nil, app.WithBuilder(func(c *app.Context) (*workflow.Manager, error) {
		return workflow.NewManager(c.Config, c.Store, workflow.Deps{Indexer: emptyIndexer{}, Metrics: c.Metrics}, c.Logger), nil
	}))
	d, err := daemon.New(appCtx, daemon.WithPreflight(func(context.Context, *config.Config) []preflight.Result { return nil }))
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	dir, err := os.MkdirTemp("", "shelfarr-cli")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	socketPath := filepath.Join(dir, "cli.sock")

	ctx, cancel := context.WithCancel(context.Background())
	srv, err := ipc.NewServer(ctx, socketPath, d, nil, nil)
	if err != nil {
		cancel()
		os.RemoveAll(dir)
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		d.Close()
		os.RemoveAll(dir)
	})

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		daemon:     d,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
