// Package testing prepares the environment for tests that boot the
// application. Import it for its side effects.
package testing

import (
	"os"
	"sync"
)

const testModeEnv = "CRM221_TEST_MODE"

// defaults fill settings the application refuses to start without.
var defaults = []struct{ key, value string }{
	{"SESSION_SECRET", "test-secret"},
	{"SESSION_BACKEND", "memory"},
}

var once sync.Once

func init() {
	Setup()
}

// Setup enables test mode and sets any empty default. Repeated calls are no-ops.
func Setup() {
	once.Do(func() {
		_ = os.Setenv(testModeEnv, "1")
		for _, d := range defaults {
			if os.Getenv(d.key) == "" {
				_ = os.Setenv(d.key, d.value)
			}
		}
	})
}
