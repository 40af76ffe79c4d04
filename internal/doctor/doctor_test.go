package doctor_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-light-tts/internal/doctor"
)

const espeakBanner = "eSpeak NG text-to-speech: 1.51  Data at: /usr/share/espeak-ng-data\n"

func noFeatures() []string { return nil }

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	cfg := doctor.Config{
		EspeakVersion: func() (string, error) { return espeakBanner, nil },
		Threads:       2,
		CPUFeatures:   func() []string { return []string{"avx2", "fma"} },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	body := out.String()
	for _, want := range []string{"espeak-ng: 1.51", "runtime threads: 2", "cpu features: avx2 fma"} {
		if !strings.Contains(body, want) {
			t.Errorf("output missing %q:\n%s", want, body)
		}
	}
}

// ---------------------------------------------------------------------------
// espeak-ng binary
// ---------------------------------------------------------------------------

func TestRun_EspeakMissingFails(t *testing.T) {
	cfg := doctor.Config{
		EspeakVersion: func() (string, error) { return "", errBinaryNotFound },
		CPUFeatures:   noFeatures,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure when espeak-ng is not found")
	}

	if !hasFailureContaining(result.Failures(), "espeak-ng") {
		t.Errorf("expected failure mentioning espeak-ng, got: %v", result.Failures())
	}
}

func TestRun_EspeakTooOldFails(t *testing.T) {
	cfg := doctor.Config{
		EspeakVersion: func() (string, error) { return "speak text-to-speech: 1.48.04  Data at: x", nil },
		CPUFeatures:   noFeatures,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !hasFailureContaining(result.Failures(), "version") {
		t.Errorf("expected version failure, got: %v", result.Failures())
	}
}

func TestRun_EspeakUnparseableFails(t *testing.T) {
	cfg := doctor.Config{
		EspeakVersion: func() (string, error) { return "garbage", nil },
		CPUFeatures:   noFeatures,
	}

	var out strings.Builder
	if result := doctor.Run(cfg, &out); !result.Failed() {
		t.Fatal("expected failure for unparseable version output")
	}
}

func TestRun_EspeakWithoutProbeFails(t *testing.T) {
	var out strings.Builder
	if result := doctor.Run(doctor.Config{CPUFeatures: noFeatures}, &out); !result.Failed() {
		t.Fatal("expected failure when no espeak version check is configured")
	}
}

func TestRun_SkipEspeak(t *testing.T) {
	cfg := doctor.Config{SkipEspeak: true, CPUFeatures: noFeatures}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Fatalf("expected no failures when espeak is skipped, got: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "espeak-ng: skipped") {
		t.Fatalf("expected skipped output, got:\n%s", out.String())
	}
}

func TestParseEspeakVersion(t *testing.T) {
	ver, err := doctor.ParseEspeakVersion(espeakBanner)
	if err != nil || ver != "1.51" {
		t.Fatalf("ParseEspeakVersion = %q, %v; want 1.51", ver, err)
	}

	ver, err = doctor.ParseEspeakVersion("eSpeak NG text-to-speech: 1.50.1-dev Data at: x")
	if err != nil || ver != "1.50.1" {
		t.Fatalf("ParseEspeakVersion = %q, %v; want 1.50.1", ver, err)
	}

	if _, err := doctor.ParseEspeakVersion(""); err == nil {
		t.Fatal("expected error for empty output")
	}
}

// ---------------------------------------------------------------------------
// colour-coded output
// ---------------------------------------------------------------------------

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	cfg := doctor.Config{
		EspeakVersion: func() (string, error) { return "", errBinaryNotFound },
		CPUFeatures:   noFeatures,
	}

	var out strings.Builder
	doctor.Run(cfg, &out)

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) {
		t.Errorf("output missing pass marker %q:\n%s", doctor.PassMark, body)
	}

	if !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output missing fail marker %q:\n%s", doctor.FailMark, body)
	}
}

// ---------------------------------------------------------------------------
// weight file checks
// ---------------------------------------------------------------------------

func TestRun_ModelPresent(t *testing.T) {
	// Use a file we know exists (the test file itself).
	cfg := doctor.Config{
		SkipEspeak:  true,
		ModelPath:   "doctor_test.go",
		CPUFeatures: noFeatures,
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Errorf("expected pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "safetensors model: doctor_test.go") {
		t.Errorf("output should mention safetensors model; got:\n%s", out.String())
	}
}

func TestRun_ModelMissing(t *testing.T) {
	cfg := doctor.Config{
		SkipEspeak:  true,
		ModelPath:   "/nonexistent/model.safetensors",
		CPUFeatures: noFeatures,
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if !result.Failed() {
		t.Fatal("expected failure for missing safetensors model")
	}

	if !hasFailureContaining(result.Failures(), "safetensors") {
		t.Errorf("expected failure mentioning safetensors, got: %v", result.Failures())
	}
}

func TestRun_ValidateModelCallback(t *testing.T) {
	cfg := doctor.Config{
		SkipEspeak: true,
		ModelPath:  "doctor_test.go", // exists
		ValidateModel: func(_ string) (string, error) {
			return "", sentinelError("bad keys")
		},
		CPUFeatures: noFeatures,
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if !result.Failed() {
		t.Fatal("expected failure from validation callback")
	}

	if !hasFailureContaining(result.Failures(), "validation") {
		t.Errorf("expected failure mentioning validation, got: %v", result.Failures())
	}
}

func TestRun_ValidateModelPassesOnSuccess(t *testing.T) {
	cfg := doctor.Config{
		SkipEspeak: true,
		ModelPath:  "doctor_test.go",
		ValidateModel: func(_ string) (string, error) {
			return "step 100, 41 tensors", nil
		},
		CPUFeatures: noFeatures,
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Errorf("expected pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "validation: ok (step 100, 41 tensors)") {
		t.Errorf("output should contain the validation summary; got:\n%s", out.String())
	}
}

// ---------------------------------------------------------------------------
// hints file and threads
// ---------------------------------------------------------------------------

func TestRun_HintsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.yaml")
	if err := os.WriteFile(path, []byte("Nietzsche: niːtʃə\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := doctor.Config{
		SkipEspeak:    true,
		HintsPath:     path,
		ValidateHints: func(string) (int, error) { return 1, nil },
		CPUFeatures:   noFeatures,
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Fatalf("expected pass; failures: %v", result.Failures())
	}

	if !strings.Contains(out.String(), "(1 entries)") {
		t.Errorf("output should report the entry count; got:\n%s", out.String())
	}

	cfg.ValidateHints = func(string) (int, error) { return 0, sentinelError("yaml: bad") }
	if result := doctor.Run(cfg, &out); !hasFailureContaining(result.Failures(), "hints") {
		t.Errorf("expected hints failure, got: %v", result.Failures())
	}

	cfg.HintsPath = filepath.Join(t.TempDir(), "missing.yaml")
	if result := doctor.Run(cfg, &out); !hasFailureContaining(result.Failures(), "hints") {
		t.Errorf("expected missing hints failure, got: %v", result.Failures())
	}
}

func TestRun_NegativeThreadsFail(t *testing.T) {
	var out strings.Builder

	result := doctor.Run(doctor.Config{SkipEspeak: true, Threads: -1, CPUFeatures: noFeatures}, &out)
	if !hasFailureContaining(result.Failures(), "threads") {
		t.Errorf("expected threads failure, got: %v", result.Failures())
	}
}

func TestCPUFeatures_DoesNotPanic(t *testing.T) {
	for _, f := range doctor.CPUFeatures() {
		if f == "" {
			t.Error("empty feature name")
		}
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errBinaryNotFound = sentinelError("binary not found")

func hasFailureContaining(failures []string, substr string) bool {
	substr = strings.ToLower(substr)
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}

	return false
}
