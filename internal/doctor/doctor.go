// Package doctor provides environment preflight checks for lighttts.
package doctor

import (
	"fmt"
	"io"
	"os"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/cpu"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// EspeakVersion returns the output of `espeak-ng --version`.
	EspeakVersion VersionFunc
	// SkipEspeak skips the phonemizer check (cleaners without phonemes).
	SkipEspeak bool
	// ModelPath is the weight file to verify on disk.
	ModelPath string
	// ValidateModel optionally inspects the weight file and returns a short
	// summary for the report.
	ValidateModel func(path string) (string, error)
	// HintsPath is the optional pronunciation hints file.
	HintsPath string
	// ValidateHints optionally parses the hints file and returns its entry count.
	ValidateHints func(path string) (int, error)
	// Threads is the configured kernel worker count; 0 skips the check.
	Threads int
	// CPUFeatures overrides feature detection in tests.
	CPUFeatures func() []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- espeak-ng binary -------------------------------------------------
	if cfg.SkipEspeak {
		fmt.Fprintf(w, "%s espeak-ng: skipped (cleaners do not phonemize)\n", PassMark)
	} else {
		checkEspeak(cfg.EspeakVersion, w, &res)
	}

	// ---- weight file ------------------------------------------------------
	if cfg.ModelPath != "" {
		if _, err := os.Stat(cfg.ModelPath); err != nil {
			res.fail(fmt.Sprintf("safetensors model %q: %v", cfg.ModelPath, err))
			fmt.Fprintf(w, "%s safetensors model %s: not found\n", FailMark, cfg.ModelPath)
		} else {
			fmt.Fprintf(w, "%s safetensors model: %s\n", PassMark, cfg.ModelPath)

			if cfg.ValidateModel != nil {
				if summary, err := cfg.ValidateModel(cfg.ModelPath); err != nil {
					res.fail(fmt.Sprintf("safetensors model validation: %v", err))
					fmt.Fprintf(w, "%s safetensors model validation: %v\n", FailMark, err)
				} else {
					fmt.Fprintf(w, "%s safetensors model validation: ok (%s)\n", PassMark, summary)
				}
			}
		}
	}

	// ---- hints file -------------------------------------------------------
	if cfg.HintsPath != "" {
		if _, err := os.Stat(cfg.HintsPath); err != nil {
			res.fail(fmt.Sprintf("hints file %q: %v", cfg.HintsPath, err))
			fmt.Fprintf(w, "%s hints file %s: not found\n", FailMark, cfg.HintsPath)
		} else if cfg.ValidateHints != nil {
			if n, err := cfg.ValidateHints(cfg.HintsPath); err != nil {
				res.fail(fmt.Sprintf("hints file %q: %v", cfg.HintsPath, err))
				fmt.Fprintf(w, "%s hints file %s: %v\n", FailMark, cfg.HintsPath, err)
			} else {
				fmt.Fprintf(w, "%s hints file: %s (%d entries)\n", PassMark, cfg.HintsPath, n)
			}
		} else {
			fmt.Fprintf(w, "%s hints file: %s\n", PassMark, cfg.HintsPath)
		}
	}

	// ---- threads ----------------------------------------------------------
	if cfg.Threads < 0 {
		res.fail(fmt.Sprintf("runtime threads: must be >= 0, got %d", cfg.Threads))
		fmt.Fprintf(w, "%s runtime threads: %d\n", FailMark, cfg.Threads)
	} else if cfg.Threads > 0 {
		fmt.Fprintf(w, "%s runtime threads: %d (%d CPUs)\n", PassMark, cfg.Threads, runtime.NumCPU())
	}

	// ---- CPU features (informational) -------------------------------------
	features := cfg.CPUFeatures
	if features == nil {
		features = CPUFeatures
	}

	if list := features(); len(list) > 0 {
		fmt.Fprintf(w, "%s cpu features: %s\n", PassMark, strings.Join(list, " "))
	} else {
		fmt.Fprintf(w, "%s cpu features: none detected (%s)\n", PassMark, runtime.GOARCH)
	}

	return res
}

func checkEspeak(version VersionFunc, w io.Writer, res *Result) {
	if version == nil {
		res.fail("espeak-ng: no version check configured")
		fmt.Fprintf(w, "%s espeak-ng: not checked\n", FailMark)

		return
	}

	out, err := version()
	if err != nil {
		res.fail(fmt.Sprintf("espeak-ng: %v", err))
		fmt.Fprintf(w, "%s espeak-ng: not found (%v)\n", FailMark, err)

		return
	}

	ver, err := ParseEspeakVersion(out)
	if err != nil {
		res.fail(fmt.Sprintf("espeak-ng: %v", err))
		fmt.Fprintf(w, "%s espeak-ng: %v\n", FailMark, err)

		return
	}

	if err := checkEspeakVersion(ver); err != nil {
		res.fail(fmt.Sprintf("espeak-ng version: %v", err))
		fmt.Fprintf(w, "%s espeak-ng version %s: %v\n", FailMark, ver, err)

		return
	}

	fmt.Fprintf(w, "%s espeak-ng: %s\n", PassMark, ver)
}

var versionRE = regexp.MustCompile(`[0-9]+\.[0-9]+(\.[0-9]+)?`)

// ParseEspeakVersion extracts the version number from `espeak-ng --version`
// output such as "eSpeak NG text-to-speech: 1.51  Data at: ...".
func ParseEspeakVersion(out string) (string, error) {
	ver := versionRE.FindString(out)
	if ver == "" {
		return "", fmt.Errorf("no version in %q", strings.TrimSpace(out))
	}

	return ver, nil
}

// checkEspeakVersion returns an error for releases older than 1.49, the first
// espeak-ng release.
func checkEspeakVersion(ver string) error {
	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return fmt.Errorf("cannot parse %q: %w", ver, err)
	}

	if major < 1 || (major == 1 && minor < 49) {
		return fmt.Errorf("requires espeak-ng >=1.49, got %d.%d", major, minor)
	}

	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}

	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}

	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}

	return major, minor, nil
}

// CPUFeatures lists the SIMD extensions of the running CPU that matter for
// the float32 kernels.
func CPUFeatures() []string {
	var out []string

	add := func(ok bool, name string) {
		if ok {
			out = append(out, name)
		}
	}

	switch runtime.GOARCH {
	case "amd64", "386":
		add(cpu.X86.HasSSE41, "sse4.1")
		add(cpu.X86.HasAVX, "avx")
		add(cpu.X86.HasAVX2, "avx2")
		add(cpu.X86.HasFMA, "fma")
		add(cpu.X86.HasAVX512F, "avx512f")
	case "arm64":
		add(cpu.ARM64.HasASIMD, "asimd")
		add(cpu.ARM64.HasFPHP, "fphp")
		add(cpu.ARM64.HasSVE, "sve")
	}

	return out
}
