package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// DefaultOCRModel is the Gemini model used for receipt recognition.
const DefaultOCRModel = "gemini-2.5-flash"

const ocrPrompt = "You are an OCR engine reading a retail receipt image.\n\n" +
	"Task:\n" +
	"- Transcribe the receipt line by line, top to bottom.\n" +
	"- Output STRICT JSON only (no comments, no extra text).\n" +
	"- Output a JSON array of token objects.\n\n" +
	"Each object must have these fields:\n" +
	"- \"text\": string, one word or price token; append \"\\n\" to the last token of each printed line\n" +
	"- \"confidence\": number in [0,1], your certainty the token is transcribed exactly\n\n" +
	"Rules:\n" +
	"- Preserve the original ordering and line structure.\n" +
	"- Do not correct spelling or normalize prices.\n" +
	"- Use lower confidence for smudged, cut-off, or guessed tokens.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Output must begin with \"[\" and end with \"]\".\n"

// GeminiOCR is an OCREngine backed by Gemini vision. It treats the
// model as a recognizer that reports its own per-token certainty.
type GeminiOCR struct {
	model string
}

func NewGeminiOCR(model string) *GeminiOCR {
	if model == "" {
		model = DefaultOCRModel
	}
	return &GeminiOCR{model: model}
}

// Recognize sends the prepared PNG to the model and decodes the token
// array it returns.
func (g *GeminiOCR) Recognize(ctx context.Context, png []byte) ([]Token, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("Recognize: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: ocrPrompt},
				{
					InlineData: &genai.Blob{
						MIMEType: "image/png",
						Data:     png,
					},
				},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return nil, fmt.Errorf("Recognize: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return nil, fmt.Errorf("Recognize: empty response from model")
	}

	var tokens []Token
	clean := cleanModelJSON(rawText)
	if err := json.Unmarshal([]byte(clean), &tokens); err != nil {
		return nil, fmt.Errorf("Recognize: unmarshal JSON: %w\nraw response: %s", err, rawText)
	}
	return tokens, nil
}

// cleanModelJSON strips Markdown fences and surrounding junk when the
// model ignores the formatting instructions.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "["); start != -1 {
		if end := strings.LastIndex(s, "]"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
