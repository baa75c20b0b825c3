package app

import (
	"os"
	"testing"

	"github.com/specialistvlad/devmgr/internal/registry"
	"github.com/specialistvlad/devmgr/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Set
// DEVMGR_TEST_LOGS=true to print the captured log of each test.
func SetupAppTest(t *testing.T, cfg *Config, modules ...registry.Module) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	cfg.LogLevel = "debug"
	testApp := NewApp(logBuffer, cfg, modules...)

	t.Cleanup(func() {
		if os.Getenv("DEVMGR_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
