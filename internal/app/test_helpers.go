package app

import (
	"os"
	"testing"

	"github.com/vk/langforge/internal/testutil"
)

// SetupAppTest creates a new app instance for system testing. Logs are
// captured at debug level and dumped when LANGFORGE_TEST_LOGS=true.
func SetupAppTest(t *testing.T, appConfig *Config, deps *Deps) (*App, *testutil.SafeBuffer) {
	t.Helper()

	logBuffer := &testutil.SafeBuffer{}
	appConfig.LogLevel = "debug"
	if deps == nil {
		deps = &Deps{}
	}
	if deps.Environ == nil {
		deps.Environ = []string{}
	}
	testApp := NewApp(logBuffer, appConfig, deps)

	t.Cleanup(func() {
		if os.Getenv("LANGFORGE_TEST_LOGS") == "true" {
			t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
		}
	})

	return testApp, logBuffer
}
