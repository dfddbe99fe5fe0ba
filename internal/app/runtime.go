package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

// TestModeEnv, when true, makes the binaries exit before listening and turns
// off access logging.
const TestModeEnv = "CRM221_TEST_MODE"

const (
	modeUnknown int32 = iota
	modeOff
	modeOn
)

var testMode atomic.Int32

func readTestMode() int32 {
	if on, err := strconv.ParseBool(os.Getenv(TestModeEnv)); err == nil && on {
		return modeOn
	}
	return modeOff
}

// InTestMode reports whether TestModeEnv was true when first checked.
func InTestMode() bool {
	mode := testMode.Load()
	if mode == modeUnknown {
		mode = readTestMode()
		testMode.CompareAndSwap(modeUnknown, mode)
	}
	return mode == modeOn
}

// RefreshTestMode re-reads TestModeEnv.
func RefreshTestMode() {
	testMode.Store(readTestMode())
}
