package text

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// Cleaner names accepted by NewPipeline.
const (
	BasicCleaners           = "basic_cleaners"
	BasicCleanersProd       = "basic_cleaners_prod"
	TransliterationCleaners = "transliteration_cleaners"
	EnglishCleaners         = "english_cleaners"
)

type step func(ctx context.Context, s string) (string, error)

func pure(fn func(string) string) step {
	return func(_ context.Context, s string) (string, error) {
		return fn(s), nil
	}
}

// PipelineOptions supplies the collaborators that some cleaners need.
type PipelineOptions struct {
	Phonemizer Phonemizer
	Hints      Hints
}

// Pipeline runs one or more named cleaners in order.
type Pipeline struct {
	names []string
	steps []step
}

// CleanerNames lists the known cleaner names.
func CleanerNames() []string {
	return []string{BasicCleaners, BasicCleanersProd, TransliterationCleaners, EnglishCleaners}
}

// NeedsPhonemizer reports whether any cleaner in the comma-separated list
// calls out to a phonemizer.
func NeedsPhonemizer(names string) bool {
	for _, n := range splitNames(names) {
		if n == BasicCleaners || n == BasicCleanersProd {
			return true
		}
	}

	return false
}

// NewPipeline builds the pipeline for a comma-separated list of cleaner
// names.
func NewPipeline(names string, opts PipelineOptions) (*Pipeline, error) {
	list := splitNames(names)
	if len(list) == 0 {
		return nil, fmt.Errorf("text: no cleaners given (known: %s)", strings.Join(CleanerNames(), ", "))
	}

	p := &Pipeline{names: list}

	for _, name := range list {
		steps, err := cleanerSteps(name, opts)
		if err != nil {
			return nil, err
		}

		p.steps = append(p.steps, steps...)
	}

	return p, nil
}

func cleanerSteps(name string, opts PipelineOptions) ([]step, error) {
	switch name {
	case BasicCleaners, BasicCleanersProd:
		if opts.Phonemizer == nil {
			return nil, fmt.Errorf("%w: cleaner %q needs a phonemizer", ErrPhonemizerUnavailable, name)
		}

		phonemize := opts.Phonemizer.Phonemize
		if name == BasicCleanersProd {
			phonemize = func(ctx context.Context, s string) (string, error) {
				return PhonemizeWithHints(ctx, opts.Phonemizer, opts.Hints, s)
			}
		}

		return []step{
			pure(FilterApproved),
			pure(NormalizeNumbers),
			phonemize,
			pure(CollapseWhitespace),
		}, nil
	case TransliterationCleaners:
		return []step{
			pure(ConvertToASCII),
			pure(Lowercase),
			pure(CollapseWhitespace),
		}, nil
	case EnglishCleaners:
		return []step{
			pure(ConvertToASCII),
			pure(Lowercase),
			pure(NormalizeNumbers),
			pure(ExpandAbbreviations),
			pure(CollapseWhitespace),
		}, nil
	default:
		return nil, fmt.Errorf("text: unknown cleaner %q (known: %s)", name, strings.Join(CleanerNames(), ", "))
	}
}

func splitNames(names string) []string {
	var out []string
	for n := range strings.SplitSeq(names, ",") {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}

	return out
}

// Names returns the cleaner names in run order.
func (p *Pipeline) Names() []string {
	return slices.Clone(p.names)
}

// Clean runs every step on s.
func (p *Pipeline) Clean(ctx context.Context, s string) (string, error) {
	for _, st := range p.steps {
		var err error

		s, err = st(ctx, s)
		if err != nil {
			return "", err
		}
	}

	return s, nil
}
