// Package testutil provides shared skip helpers and assertions for
// integration tests.
//
// Each Require helper calls t.Skip with a clear human-readable reason when the
// named prerequisite is absent, so integration tests remain runnable in
// partial environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireEspeak(t)
//	    path := testutil.RequireWeights(t)
//	    ...
//	}
package testutil

import (
	"os"
	"os/exec"
	"testing"
)

// Environment variables consulted by the Require helpers. They match the
// configuration keys read by the CLI.
const (
	EspeakPathEnv = "LIGHTTTS_TEXT_ESPEAK_PATH"
	ModelPathEnv  = "LIGHTTTS_PATHS_MODEL_PATH"
)

// RequireEspeak skips the test if the espeak-ng binary is not found in PATH
// or at the path given by LIGHTTTS_TEXT_ESPEAK_PATH. It returns the resolved
// executable.
func RequireEspeak(tb testing.TB) string {
	tb.Helper()

	exe := os.Getenv(EspeakPathEnv)
	if exe == "" {
		exe = "espeak-ng"
	}

	path, err := exec.LookPath(exe)
	if err != nil {
		tb.Skipf("espeak-ng binary not available (%q not in PATH); set %s to override", exe, EspeakPathEnv)
		return ""
	}

	return path
}

// RequireWeights skips the test unless LIGHTTTS_PATHS_MODEL_PATH names an
// existing weight file, and returns that path.
func RequireWeights(tb testing.TB) string {
	tb.Helper()

	p := os.Getenv(ModelPathEnv)
	if p == "" {
		tb.Skipf("no trained weights configured; set %s", ModelPathEnv)
		return ""
	}

	if _, err := os.Stat(p); err != nil {
		tb.Skipf("weights not found at %s=%q", ModelPathEnv, p)
		return ""
	}

	return p
}
