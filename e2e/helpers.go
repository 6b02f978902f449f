//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frobware/go-tracefabric/cmd/tracefabric/cli"
	"github.com/frobware/go-tracefabric/logging"
	"github.com/frobware/go-tracefabric/manager"
)

// ConfigEnvVar names the configuration file describing the fabric
// under test. Its topology must match the hardware.
const ConfigEnvVar = "TRACEFABRIC_E2E_CONFIG"

// TestEnv provides an isolated test environment for e2e tests. Each
// test gets its own runtime directory and ledger over the shared
// hardware, so tests touching the fabric must not run in parallel.
type TestEnv struct {
	T       *testing.T
	Runtime *cli.CLIRuntime
	base    string
}

// NewTestEnv opens the fabric named by TRACEFABRIC_E2E_CONFIG with a
// fresh runtime directory in /tmp/tracefabric-e2e-<pid>-<testname>/.
//
// TRACEFABRIC_LOG selects log levels as for the CLI, e.g.
// TRACEFABRIC_LOG=debug or TRACEFABRIC_LOG=info,manager=debug.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	cfgPath := os.Getenv(ConfigEnvVar)
	if cfgPath == "" {
		t.Fatalf("%s must name a tracefabric configuration", ConfigEnvVar)
	}

	spec := os.Getenv(logging.EnvVar)
	if spec == "" {
		spec = "error"
	}

	baseDir := filepath.Join(os.TempDir(), fmt.Sprintf("tracefabric-e2e-%d-%s", os.Getpid(), sanitizeTestName(t.Name())))
	c := &cli.CLI{Config: cfgPath, Log: spec, RuntimeDir: baseDir}

	rt, err := c.NewCLIRuntime(context.Background())
	require.NoError(t, err, "failed to open fabric")

	env := &TestEnv{T: t, Runtime: rt, base: baseDir}
	t.Cleanup(env.cleanup)
	return env
}

// Manager returns the Manager over the fabric.
func (e *TestEnv) Manager() *manager.Manager {
	return e.Runtime.Manager
}

func (e *TestEnv) cleanup() {
	if err := e.Runtime.Close(); err != nil {
		e.T.Logf("warning: failed to close runtime: %v", err)
	}
	if err := os.RemoveAll(e.base); err != nil {
		e.T.Logf("warning: failed to remove %s: %v", e.base, err)
	}
}

// AssertCleanState verifies that no device is enabled or claimed and
// that no self-hosted claim tag is left set in hardware.
func (e *TestEnv) AssertCleanState() {
	e.T.Helper()
	for _, s := range e.Manager().Status() {
		require.Zero(e.T, s.Refs, "%s refs", s.ID)
		require.Empty(e.T, s.Owner, "%s owner", s.ID)
	}

	plan, err := e.Manager().PlanGC(context.Background(), manager.GCConfig{IncludeClaims: true})
	require.NoError(e.T, err)
	require.Empty(e.T, plan.Items, "stale claim tags")
}

// RequireRoot fails the test if not running as root.
func RequireRoot(t *testing.T) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Fatal("test requires root privileges")
	}
}

// RequireDevMem fails the test if /dev/mem cannot be opened for
// writing.
func RequireDevMem(t *testing.T) {
	t.Helper()
	f, err := os.OpenFile("/dev/mem", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("test requires /dev/mem: %v", err)
	}
	f.Close()
}

// sanitizeTestName converts a test name to a safe directory name.
func sanitizeTestName(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, " ", "_")
	if len(name) > 50 {
		name = name[:50]
	}
	return name
}

// cleanupStaleTestDirs removes leftover test directories from previous runs.
func cleanupStaleTestDirs() {
	matches, err := filepath.Glob(filepath.Join(os.TempDir(), "tracefabric-e2e-*"))
	if err != nil {
		return
	}

	for _, path := range matches {
		parts := strings.Split(filepath.Base(path), "-")
		if len(parts) >= 3 {
			if pid, err := strconv.Atoi(parts[2]); err == nil {
				if _, err := os.Stat(fmt.Sprintf("/proc/%d", pid)); err == nil {
					continue
				}
			}
		}
		os.RemoveAll(path)
	}
}
