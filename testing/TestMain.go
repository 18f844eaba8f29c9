// Package testing flips the binaries into test mode when imported for its
// side effects, so packages that construct the app never dial real services.
package testing

import (
	"os"
	"sync"
	stdtesting "testing"
)

const testModeEnv = "BACKOFFICE_TEST_MODE"

var once sync.Once

func ensureTestMode() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		if os.Getenv("RATE_LIMIT_BACKEND") == "" {
			_ = os.Setenv("RATE_LIMIT_BACKEND", "memory")
		}
	})
}

func init() {
	ensureTestMode()
}

// TestMain runs m with test mode enabled.
func TestMain(m *stdtesting.M) {
	ensureTestMode()
	os.Exit(m.Run())
}
