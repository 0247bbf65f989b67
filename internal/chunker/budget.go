package chunker

import "strings"

// Fit returns the longest prefix of text that stays within maxTokens,
// cutting at paragraph boundaries and then at sentence boundaries inside
// the first paragraph that overflows. When not even one sentence of the
// opening paragraph fits, it is cut at a word boundary instead, so the
// result is never empty for non-empty text. The bool reports whether
// anything was dropped. A non-positive budget disables truncation.
func Fit(text string, maxTokens int) (string, bool) {
	if maxTokens <= 0 || EstimateTokens(text) <= maxTokens {
		return text, false
	}

	var kept []string
	used := 0
	for _, para := range splitByParagraphs(text) {
		paraTokens := EstimateTokens(para)
		if used+paraTokens <= maxTokens {
			kept = append(kept, para)
			used += paraTokens
			continue
		}
		partial := fitSentences(para, maxTokens-used)
		if partial == "" && len(kept) == 0 {
			partial = fitWords(para, maxTokens)
		}
		if partial != "" {
			kept = append(kept, partial)
		}
		break
	}
	return strings.Join(kept, "\n\n"), true
}

// fitSentences keeps whole sentences of para within budget.
func fitSentences(para string, budget int) string {
	if budget <= 0 {
		return ""
	}
	var sb strings.Builder
	used := 0
	for _, sent := range splitSentences(para) {
		t := EstimateTokens(sent)
		if used+t > budget {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(sent)
		used += t
	}
	return sb.String()
}

// fitWords keeps the leading words of para within budget.
func fitWords(para string, budget int) string {
	words := strings.Fields(para)
	n := int(float64(budget) / 1.33)
	if n < 1 {
		n = 1
	}
	for n > 1 && EstimateTokens(strings.Join(words[:min(n, len(words))], " ")) > budget {
		n--
	}
	return strings.Join(words[:min(n, len(words))], " ")
}

// splitByParagraphs splits on double-newlines.
func splitByParagraphs(text string) []string {
	parts := strings.Split(text, "\n\n")
	var result []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// splitSentences does basic sentence splitting.
func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder

	for i, r := range text {
		current.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && i+1 < len(text) && text[i+1] == ' ' {
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
