package chunker

import (
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("empty text: expected 0, got %d", got)
	}
	if got := EstimateTokens("x"); got != 1 {
		t.Errorf("single word: expected 1, got %d", got)
	}
	if got := EstimateTokens(strings.Repeat("word ", 300)); got != 399 {
		t.Errorf("300 words: expected 399, got %d", got)
	}
}

func TestFit_UnderBudgetUnchanged(t *testing.T) {
	text := "# Acme\n\nWe make widgets."
	got, truncated := Fit(text, 1000)
	if truncated {
		t.Fatal("expected no truncation")
	}
	if got != text {
		t.Errorf("expected text unchanged, got %q", got)
	}
}

func TestFit_ZeroBudgetDisables(t *testing.T) {
	text := strings.Repeat("word ", 5000)
	got, truncated := Fit(text, 0)
	if truncated || got != text {
		t.Fatal("expected zero budget to disable truncation")
	}
}

func TestFit_CutsAtParagraphs(t *testing.T) {
	para := strings.Repeat("alpha ", 30) // 39 tokens
	text := strings.Join([]string{para, para, para, para}, "\n\n")

	got, truncated := Fit(text, 100)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if n := strings.Count(got, "\n\n"); n != 1 {
		t.Errorf("expected 2 paragraphs kept, got %d separators in %q", n, got)
	}
	if EstimateTokens(got) > 100 {
		t.Errorf("result over budget: %d tokens", EstimateTokens(got))
	}
}

func TestFit_SplitsOversizedParagraphBySentence(t *testing.T) {
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 50)

	got, truncated := Fit(text, 60)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if got == "" {
		t.Fatal("expected some sentences kept")
	}
	if !strings.HasSuffix(got, "dog.") {
		t.Errorf("expected cut at sentence boundary, got %q", got[len(got)-20:])
	}
	if EstimateTokens(got) > 60 {
		t.Errorf("result over budget: %d tokens", EstimateTokens(got))
	}
}

func TestFit_HardCutsParagraphWithoutSentences(t *testing.T) {
	text := strings.Repeat("revenue ", 300)

	got, truncated := Fit(text, 100)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if got == "" {
		t.Fatal("expected leading words kept")
	}
	if !strings.HasPrefix(got, "revenue revenue") {
		t.Errorf("expected a prefix of the paragraph, got %q", got)
	}
	if n := EstimateTokens(got); n > 100 || n < 90 {
		t.Errorf("expected close to 100 tokens, got %d", n)
	}
}

func TestFit_TableAfterIntroKeepsIntro(t *testing.T) {
	intro := "# Acme"
	table := strings.Repeat("| ARR | $1M | $3M | ", 100)
	got, truncated := Fit(intro+"\n\n"+table, 50)
	if !truncated {
		t.Fatal("expected truncation")
	}
	if got != intro {
		t.Errorf("expected only the intro kept, got %q", got)
	}
}
