package report

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiSummarizer generates the report's natural-language summary with a
// Gemini model.
type GeminiSummarizer struct {
	model string
}

// NewGeminiSummarizer creates a summarizer for the given model name.
func NewGeminiSummarizer(model string) *GeminiSummarizer {
	return &GeminiSummarizer{model: model}
}

// Summarize implements the Summarizer interface.
func (s *GeminiSummarizer) Summarize(ctx context.Context, r *Report) (string, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return "", fmt.Errorf("Summarize: create genai client: %w", err)
	}

	prompt := buildPrompt(r)
	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: prompt},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, s.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Summarize: generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("Summarize: empty response from model")
	}
	return text, nil
}

func buildPrompt(r *Report) string {
	var b strings.Builder
	b.WriteString("You are a personal finance assistant.\n\n")
	b.WriteString("Write a short, friendly summary (3-4 sentences, plain text, no Markdown) of this month's finances.\n")
	b.WriteString("Mention the overall balance and the largest spending categories. Do not invent numbers.\n\n")
	fmt.Fprintf(&b, "Month: %s\nTotal income: $%s\nTotal expenses: $%s\n", r.MonthKey, r.TotalIncome, r.TotalExpense)
	b.WriteString("Spending by category:\n")
	for _, c := range r.ByCategory {
		fmt.Fprintf(&b, "- %s: $%s\n", c.Category, c.Total)
	}
	return b.String()
}

var _ Summarizer = (*GeminiSummarizer)(nil)
