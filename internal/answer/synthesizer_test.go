package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var passages = []Passage{
	{Title: "How to Configure Automations in Hiver", Content: "Open Settings and choose Automations."},
	{Title: "Setting up SLAs", Content: "Define response targets."},
}

func TestExtractive(t *testing.T) {
	s := New(nil, Config{ExcerptLength: 10})

	if got := s.Extractive(nil); got != NoResultsMessage {
		t.Errorf("Extractive(nil) = %q", got)
	}

	want := "Based on the knowledge base article 'How to Configure Automations in Hiver', here's what I found:\n\nOpen Setti..."
	if got := s.Extractive(passages); got != want {
		t.Errorf("Extractive() = %q, want %q", got, want)
	}

	short := []Passage{{Title: "T", Content: "Short"}}
	if got := s.Extractive(short); !strings.HasSuffix(got, "\n\nShort") {
		t.Errorf("uncut excerpt should not end with an ellipsis: %q", got)
	}
}

func TestTruncateCountsRunes(t *testing.T) {
	if got := Truncate("héllo wörld", 5); got != "héllo..." {
		t.Errorf("Truncate() = %q", got)
	}
	if got := Truncate("héllo", 5); got != "héllo" {
		t.Errorf("Truncate() = %q", got)
	}
}

func TestSynthesizeWithoutGeneratorIsExtractive(t *testing.T) {
	s := New(nil, Config{Enabled: true})
	if s.GenerativeEnabled() {
		t.Fatal("nil generator must not enable generation")
	}

	res := s.Synthesize(context.Background(), "q", passages, ModeGenerative)
	if res.Mode != ModeExtractive || res.Fallback {
		t.Errorf("Synthesize() = %+v, want plain extractive", res)
	}
}

func TestSynthesizeDisabledIgnoresGenerator(t *testing.T) {
	called := false
	gen := GeneratorFunc(func(ctx context.Context, prompt string) (string, error) {
		called = true
		return "x", nil
	})
	s := New(gen, Config{Enabled: false})

	res := s.Synthesize(context.Background(), "q", passages, ModeAuto)
	if called || res.Mode != ModeExtractive {
		t.Errorf("disabled synthesizer called generator=%v mode=%s", called, res.Mode)
	}
}

func TestSynthesizeGenerative(t *testing.T) {
	var prompt string
	gen := GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		prompt = p
		return "  Go to Settings > Automations.\n", nil
	})
	s := New(gen, Config{Enabled: true})

	res := s.Synthesize(context.Background(), "How do I automate?", passages, ModeAuto)
	if res.Mode != ModeGenerative || res.Fallback {
		t.Fatalf("Synthesize() = %+v", res)
	}
	if res.Text != "Go to Settings > Automations." {
		t.Errorf("Text = %q", res.Text)
	}

	for _, want := range []string{
		"Question: How do I automate?",
		"Article: How to Configure Automations in Hiver\nOpen Settings and choose Automations.",
		"\n\n---\n\nArticle: Setting up SLAs\nDefine response targets.",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestSynthesizeExtractiveModeSkipsGenerator(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		t.Error("generator called in extractive mode")
		return "", nil
	})
	res := New(gen, Config{Enabled: true}).Synthesize(context.Background(), "q", passages, ModeExtractive)
	if res.Mode != ModeExtractive || res.Fallback {
		t.Errorf("Synthesize() = %+v", res)
	}
}

func TestSynthesizeFallsBack(t *testing.T) {
	tests := []struct {
		name string
		gen  GeneratorFunc
	}{
		{"error", func(ctx context.Context, p string) (string, error) {
			return "", errors.New("upstream 500")
		}},
		{"blank output", func(ctx context.Context, p string) (string, error) {
			return " \n\t", nil
		}},
		{"panic", func(ctx context.Context, p string) (string, error) {
			panic("boom")
		}},
		{"ignores context", func(ctx context.Context, p string) (string, error) {
			time.Sleep(2 * time.Second)
			return "too late", nil
		}},
		{"honours context", func(ctx context.Context, p string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.gen, Config{Enabled: true, Timeout: 50 * time.Millisecond})

			start := time.Now()
			res := s.Synthesize(context.Background(), "q", passages, ModeAuto)
			if elapsed := time.Since(start); elapsed > time.Second {
				t.Errorf("Synthesize() took %v, want it bounded by the timeout", elapsed)
			}
			if !res.Fallback || res.Mode != ModeExtractive || res.FallbackReason == "" {
				t.Errorf("Synthesize() = %+v, want extractive fallback", res)
			}
			if res.Text != s.Extractive(passages) {
				t.Errorf("fallback text = %q", res.Text)
			}
		})
	}
}

func TestSynthesizeNoPassages(t *testing.T) {
	gen := GeneratorFunc(func(ctx context.Context, p string) (string, error) {
		return "invented", nil
	})
	res := New(gen, Config{Enabled: true}).Synthesize(context.Background(), "q", nil, ModeAuto)
	if res.Text != NoResultsMessage {
		t.Errorf("Text = %q", res.Text)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeAuto, "AUTO": ModeAuto, " extractive ": ModeExtractive, "generative": ModeGenerative} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseMode("poetry"); err == nil {
		t.Error("ParseMode(poetry) should fail")
	}
}
