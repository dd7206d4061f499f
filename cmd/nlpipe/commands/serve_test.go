package commands

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/nlpipe/nlpipe/pkg/auth"
	"github.com/nlpipe/nlpipe/pkg/config"
	"github.com/nlpipe/nlpipe/pkg/processor"
	storefs "github.com/nlpipe/nlpipe/pkg/store/fs"
	"github.com/spf13/cobra"
)

func TestResolveStoreDir(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Dir = "/srv/from-config"

	dir, err := resolveStoreDir(cfg, []string{"/srv/from-arg"})
	if err != nil {
		t.Fatalf("resolveStoreDir failed: %v", err)
	}
	if dir != "/srv/from-arg" {
		t.Errorf("positional argument should win, got %q", dir)
	}

	dir, err = resolveStoreDir(cfg, nil)
	if err != nil {
		t.Fatalf("resolveStoreDir failed: %v", err)
	}
	if dir != "/srv/from-config" {
		t.Errorf("configured dir should be used, got %q", dir)
	}
}

func TestResolveStoreDirFallsBackToTempDir(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Store.Dir = ""

	dir, err := resolveStoreDir(cfg, nil)
	if err != nil {
		t.Fatalf("resolveStoreDir failed: %v", err)
	}
	if dir == "" {
		t.Fatal("expected a temporary directory")
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	if !strings.Contains(dir, "nlpipe_") {
		t.Errorf("temporary dir %q should carry the nlpipe_ prefix", dir)
	}
}

func TestBuildRegistry(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Processors.Commands = []processor.CommandConfig{
		{Name: "wc", Command: []string{"wc", "-w"}},
	}

	registry, err := buildRegistry(cfg)
	if err != nil {
		t.Fatalf("buildRegistry failed: %v", err)
	}
	if !registry.Has("upper") {
		t.Error("built-in upper module should always be registered")
	}
	if !registry.Has("wc") {
		t.Error("configured command processor should be registered")
	}
}

func TestBuildRegistryRejectsDuplicates(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Processors.Commands = []processor.CommandConfig{
		{Name: "upper", Command: []string{"tr", "a-z", "A-Z"}},
	}

	if _, err := buildRegistry(cfg); err == nil {
		t.Fatal("expected an error for a processor name collision")
	}
}

func TestBuildMetrics(t *testing.T) {
	st, err := storefs.New(storefs.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	cfg := config.GetDefaultConfig()
	m, gatherer := buildMetrics(cfg, st)
	if m == nil || gatherer == nil {
		t.Fatal("enabled metrics should yield counters and a gatherer")
	}
	if _, err := gatherer.Gather(); err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	cfg.Metrics.Enabled = false
	m, gatherer = buildMetrics(cfg, st)
	if m != nil {
		t.Error("disabled metrics should yield the null recorder")
	}
	if gatherer != nil {
		t.Error("disabled metrics should not expose a gatherer")
	}
}

func newWorkersCommand(t *testing.T, value string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{}
	cmd.Flags().StringSlice("workers", nil, "")
	if value != "" {
		if err := cmd.Flags().Set("workers", value); err != nil {
			t.Fatalf("failed to set workers flag: %v", err)
		}
	}
	return cmd
}

func TestBuildWorkerPool(t *testing.T) {
	st, err := storefs.New(storefs.DefaultConfig(t.TempDir()))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	registry := processor.NewRegistry()
	registry.MustRegister(processor.NewUpper())
	cfg := config.GetDefaultConfig()

	// No flag, no configured modules: no pool.
	pool, err := buildWorkerPool(newWorkersCommand(t, ""), cfg, st, registry)
	if err != nil {
		t.Fatalf("buildWorkerPool failed: %v", err)
	}
	if pool != nil {
		t.Error("expected no pool without --workers or configured modules")
	}

	// --workers=all runs every registered module.
	pool, err = buildWorkerPool(newWorkersCommand(t, "all"), cfg, st, registry)
	if err != nil {
		t.Fatalf("buildWorkerPool failed: %v", err)
	}
	if pool == nil {
		t.Fatal("expected a pool for --workers=all")
	}

	// An explicit module list is passed through.
	pool, err = buildWorkerPool(newWorkersCommand(t, "upper"), cfg, st, registry)
	if err != nil {
		t.Fatalf("buildWorkerPool failed: %v", err)
	}
	if pool == nil {
		t.Fatal("expected a pool for --workers=upper")
	}

	// A module nobody registered fails fast.
	if _, err := buildWorkerPool(newWorkersCommand(t, "missing"), cfg, st, registry); err == nil {
		t.Fatal("expected an error for an unregistered module")
	}

	// Modules from configuration enable the pool without the flag.
	cfg.Worker.Modules = []string{"upper"}
	pool, err = buildWorkerPool(newWorkersCommand(t, ""), cfg, st, registry)
	if err != nil {
		t.Fatalf("buildWorkerPool failed: %v", err)
	}
	if pool == nil {
		t.Fatal("expected a pool for configured worker modules")
	}
}

func TestRunPrintToken(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Server.Secret = "test-secret"

	var buf bytes.Buffer
	if err := runPrintToken(cfg, &buf); err != nil {
		t.Fatalf("runPrintToken failed: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "Authentication token:\n") {
		t.Fatalf("unexpected output prefix: %q", out)
	}
	token := strings.TrimSpace(strings.TrimPrefix(out, "Authentication token:\n"))
	if token == "" {
		t.Fatal("expected a token on the second line")
	}

	// The printed token must verify against the same secret.
	secret, err := auth.DeriveSecret(cfg.Server.Secret)
	if err != nil {
		t.Fatalf("DeriveSecret failed: %v", err)
	}
	tokens, err := auth.NewTokenService(secret)
	if err != nil {
		t.Fatalf("NewTokenService failed: %v", err)
	}
	if _, err := tokens.Verify(token); err != nil {
		t.Errorf("printed token failed verification: %v", err)
	}
}
