// Package answer turns retrieved passages into an answer, generative when a text
// generator is available and extractive otherwise.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbassist/backend/pkg/logger"
)

const (
	NoResultsMessage = "No relevant information found in the knowledge base."

	DefaultExcerptLength = 500
	DefaultTimeout       = 20 * time.Second
)

var errBlankOutput = errors.New("generator returned blank output")

type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeExtractive Mode = "extractive"
	ModeGenerative Mode = "generative"
)

// ParseMode accepts "", "auto", "extractive" and "generative".
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeExtractive:
		return ModeExtractive, nil
	case ModeGenerative:
		return ModeGenerative, nil
	}
	return "", fmt.Errorf("unknown answer mode %q", s)
}

// Generator produces text for a prompt. Implementations should honour ctx but are
// not required to.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

type Config struct {
	Enabled       bool
	Timeout       time.Duration
	ExcerptLength int
	// MaxPassages caps how many passages go into the generation prompt.
	MaxPassages int
}

type Passage struct {
	Title   string
	Content string
}

type Result struct {
	Text string
	// Mode is the mode that produced Text: extractive or generative.
	Mode           Mode
	Fallback       bool
	FallbackReason string
}

type Synthesizer struct {
	gen Generator
	cfg Config
}

func New(gen Generator, cfg Config) *Synthesizer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ExcerptLength <= 0 {
		cfg.ExcerptLength = DefaultExcerptLength
	}
	if cfg.MaxPassages <= 0 {
		cfg.MaxPassages = 3
	}
	if !cfg.Enabled {
		gen = nil
	}

	logger.Info("Answer synthesizer initialized",
		zap.Bool("generative", gen != nil),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &Synthesizer{gen: gen, cfg: cfg}
}

// GenerativeEnabled reports whether a generator was configured.
func (s *Synthesizer) GenerativeEnabled() bool {
	return s.gen != nil
}

// Synthesize never fails: any generation problem yields the extractive answer
// with Fallback set.
func (s *Synthesizer) Synthesize(ctx context.Context, query string, passages []Passage, mode Mode) Result {
	if mode == ModeExtractive || s.gen == nil || len(passages) == 0 {
		return Result{Text: s.Extractive(passages), Mode: ModeExtractive}
	}

	text, err := s.generate(ctx, s.prompt(query, passages))
	if err != nil {
		logger.Warn("Generative answer failed, using extractive answer",
			zap.Error(err),
			zap.String("requested_mode", string(mode)),
		)
		return Result{
			Text:           s.Extractive(passages),
			Mode:           ModeExtractive,
			Fallback:       true,
			FallbackReason: err.Error(),
		}
	}

	return Result{Text: text, Mode: ModeGenerative}
}

// Extractive quotes the first passage.
func (s *Synthesizer) Extractive(passages []Passage) string {
	if len(passages) == 0 {
		return NoResultsMessage
	}
	top := passages[0]
	return fmt.Sprintf("Based on the knowledge base article '%s', here's what I found:\n\n%s",
		top.Title, Truncate(top.Content, s.cfg.ExcerptLength))
}

type generation struct {
	text string
	err  error
}

// generate runs the generator in its own goroutine so that a generator ignoring
// ctx cannot hold the caller past the timeout.
func (s *Synthesizer) generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	done := make(chan generation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- generation{err: fmt.Errorf("generator panicked: %v", r)}
			}
		}()
		text, err := s.gen.Generate(ctx, prompt)
		done <- generation{text: text, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("generation timed out: %w", ctx.Err())
	case g := <-done:
		if g.err != nil {
			return "", g.err
		}
		text := strings.TrimSpace(g.text)
		if text == "" {
			return "", errBlankOutput
		}
		return text, nil
	}
}

func (s *Synthesizer) prompt(query string, passages []Passage) string {
	if len(passages) > s.cfg.MaxPassages {
		passages = passages[:s.cfg.MaxPassages]
	}
	parts := make([]string, len(passages))
	for i, p := range passages {
		parts[i] = fmt.Sprintf("Article: %s\n%s", p.Title, p.Content)
	}

	return fmt.Sprintf(`Answer the question using only the knowledge base articles below. If the articles do not contain the answer, say so.

Question: %s

Knowledge base articles:

%s`, query, strings.Join(parts, "\n\n---\n\n"))
}

// Truncate returns the first n runes of s, followed by "..." when s was longer.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
