package text

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// ErrPhonemizerUnavailable is returned when the espeak-ng executable cannot
// be found.
var ErrPhonemizerUnavailable = errors.New("text: phonemizer unavailable")

// PhonemePunctuation lists the marks kept verbatim around phonemized words.
const PhonemePunctuation = `;:,.!?¡¿—…"«»“”()`

// DefaultEspeakPath is the executable looked up on PATH when no path is
// configured.
const DefaultEspeakPath = "espeak-ng"

// Phonemizer converts orthographic text to IPA phonemes.
type Phonemizer interface {
	Phonemize(ctx context.Context, text string) (string, error)
}

// CommandRunner runs name with args, feeding stdin, and returns stdout.
type CommandRunner func(ctx context.Context, name string, args []string, stdin string) (string, error)

// Espeak phonemizes through the espeak-ng command line tool. Stress marks
// and language-switch flags are removed from its output; punctuation is cut
// out before the call and put back afterwards.
type Espeak struct {
	Path     string
	Language string
	// Run defaults to executing the binary; tests substitute it.
	Run CommandRunner
}

// NewEspeak returns an espeak-ng phonemizer. Empty arguments select
// DefaultEspeakPath and German.
func NewEspeak(path, language string) *Espeak {
	if path == "" {
		path = DefaultEspeakPath
	}

	if language == "" {
		language = "de"
	}

	return &Espeak{Path: path, Language: language, Run: runCommand}
}

// Available reports ErrPhonemizerUnavailable when the binary cannot be
// resolved.
func (e *Espeak) Available() error {
	if _, err := exec.LookPath(e.Path); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPhonemizerUnavailable, e.Path, err)
	}

	return nil
}

var (
	punctRunRE     = regexp.MustCompile(`[` + regexp.QuoteMeta(PhonemePunctuation) + `]+`)
	languageFlagRE = regexp.MustCompile(`\([a-z]{2,3}(-[a-z0-9]+)?\)`)
	stressRE       = regexp.MustCompile(`[ˈˌ]`)
)

// Phonemize returns the IPA transcription of text. A hyphen is carried as an
// em-dash through espeak-ng so that it is preserved as punctuation.
func (e *Espeak) Phonemize(ctx context.Context, text string) (string, error) {
	text = strings.ReplaceAll(text, "-", "—")

	var b strings.Builder

	last := 0
	for _, loc := range punctRunRE.FindAllStringIndex(text, -1) {
		if err := e.writeWords(ctx, &b, text[last:loc[0]]); err != nil {
			return "", err
		}

		b.WriteString(text[loc[0]:loc[1]])
		last = loc[1]
	}

	if err := e.writeWords(ctx, &b, text[last:]); err != nil {
		return "", err
	}

	out := strings.ReplaceAll(b.String(), "—", "-")

	return strings.TrimSpace(out), nil
}

// writeWords phonemizes a punctuation-free segment, keeping a single space on
// each side where the segment had one.
func (e *Espeak) writeWords(ctx context.Context, b *strings.Builder, segment string) error {
	words := strings.TrimSpace(segment)
	if words == "" {
		if segment != "" {
			b.WriteByte(' ')
		}

		return nil
	}

	phon, err := e.phonemizeWords(ctx, words)
	if err != nil {
		return err
	}

	if strings.TrimLeft(segment, " \t\n") != segment {
		b.WriteByte(' ')
	}

	b.WriteString(phon)

	if strings.TrimRight(segment, " \t\n") != segment {
		b.WriteByte(' ')
	}

	return nil
}

func (e *Espeak) phonemizeWords(ctx context.Context, words string) (string, error) {
	run := e.Run
	if run == nil {
		run = runCommand
	}

	out, err := run(ctx, e.Path, []string{"-q", "--ipa", "-v", e.Language}, words)
	if err != nil {
		var execErr *exec.Error
		if errors.As(err, &execErr) {
			return "", fmt.Errorf("%w: %w", ErrPhonemizerUnavailable, err)
		}

		return "", fmt.Errorf("text: espeak-ng: %w", err)
	}

	out = languageFlagRE.ReplaceAllLiteralString(out, "")
	out = stressRE.ReplaceAllLiteralString(out, "")

	return strings.Join(strings.Fields(out), " "), nil
}

func runCommand(ctx context.Context, name string, args []string, stdin string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}

		return "", err
	}

	return out.String(), nil
}
