package gemini

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gitlab.com/yelinaung/navigator-bot/internal/logger"
	"google.golang.org/genai"
)

// MaxQueryLength is the maximum number of runes of user text sent to Gemini.
const MaxQueryLength = 200

// MaxLabelLength bounds each location label embedded in the prompt.
const MaxLabelLength = 50

// SuggestTimeout bounds a single suggestion request.
const SuggestTimeout = 10 * time.Second

// LocationSuggestion is Gemini's best guess for a free-text location query.
type LocationSuggestion struct {
	Location   string  `json:"location"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// SuggestLocation asks Gemini which of labels the user meant by query.
// The returned Location is always one of labels, in its canonical case.
func (c *Client) SuggestLocation(ctx context.Context, query string, labels []string) (*LocationSuggestion, error) {
	queryHash := hashQuery(query)
	logger.Log.Debug().
		Str("query_hash", queryHash).
		Int("label_count", len(labels)).
		Msg("SuggestLocation called")

	if c.generator == nil {
		return nil, fmt.Errorf("gemini client not initialized")
	}

	sanitized := SanitizeForPrompt(query, MaxQueryLength)
	if sanitized == "" {
		return nil, fmt.Errorf("query is required")
	}

	if len(labels) == 0 {
		return nil, fmt.Errorf("no locations available")
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, SuggestTimeout)
	defer cancel()

	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: buildLocationPrompt(sanitized, labels)}},
		},
	}

	temp := float32(0.2)
	config := &genai.GenerateContentConfig{
		Temperature:     &temp,
		MaxOutputTokens: int32(300),
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{
				{Text: "You are a JSON API. You MUST respond with ONLY valid JSON, no preamble or explanation. Output a single JSON object."},
			},
		},
		ResponseMIMEType: "application/json",
		ResponseSchema: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"location": {
					Type:        genai.TypeString,
					Enum:        labels,
					Description: "The campus location the user most likely means",
				},
				"confidence": {
					Type:        genai.TypeNumber,
					Description: "Confidence score between 0 and 1",
				},
				"reasoning": {
					Type:        genai.TypeString,
					Description: "Brief explanation",
				},
			},
			Required: []string{"location", "confidence", "reasoning"},
		},
	}

	resp, err := c.generator.GenerateContent(timeoutCtx, ModelName, contents, config)
	if err != nil {
		logger.Log.Error().Err(err).
			Str("query_hash", queryHash).
			Msg("SuggestLocation: Gemini API call failed")
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}
	if resp == nil {
		return nil, fmt.Errorf("no response from Gemini")
	}

	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("no text content in response")
	}

	// Gemini sometimes prefixes the object with prose even in JSON mode.
	jsonText := extractJSON(text)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON found in response")
	}

	var suggestion LocationSuggestion
	if err := json.Unmarshal([]byte(jsonText), &suggestion); err != nil {
		logger.Log.Error().Err(err).
			Str("query_hash", queryHash).
			Msg("SuggestLocation: failed to parse JSON response")
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	matched := false
	for _, label := range labels {
		if strings.EqualFold(label, strings.TrimSpace(suggestion.Location)) {
			suggestion.Location = label
			matched = true
			break
		}
	}
	if !matched {
		logger.Log.Warn().
			Str("query_hash", queryHash).
			Str("suggested_location", suggestion.Location).
			Msg("SuggestLocation: suggestion not in available locations")
		return nil, fmt.Errorf("suggested location %q not in available locations", suggestion.Location)
	}

	if suggestion.Confidence < 0.0 || suggestion.Confidence > 1.0 {
		return nil, fmt.Errorf("confidence out of range: %f", suggestion.Confidence)
	}

	suggestion.Reasoning = sanitizeReasoning(suggestion.Reasoning)

	logger.Log.Debug().
		Str("query_hash", queryHash).
		Str("location", suggestion.Location).
		Float64("confidence", suggestion.Confidence).
		Msg("SuggestLocation: matched location")

	return &suggestion, nil
}

func buildLocationPrompt(query string, labels []string) string {
	safe := make([]string, 0, len(labels))
	for _, l := range labels {
		safe = append(safe, SanitizeForPrompt(l, MaxLabelLength))
	}

	return fmt.Sprintf(`A student on a university campus typed: "%s"

Campus locations:
- %s

Rules:
- Pick the location the student most likely means; typos, abbreviations, transliteration and other languages are common
- "корп 1", "k1", "first building" mean a building number
- "общага", "dorm", "hostel" mean the dormitory
- Use confidence below 0.5 when the text does not refer to any location

Return JSON only:
{"location": "exact location name", "confidence": 0.0-1.0, "reasoning": "brief explanation"}`, query, strings.Join(safe, "\n- "))
}

// extractJSON returns the outermost {...} span of text, or "".
func extractJSON(text string) string {
	text = strings.TrimSpace(text)

	start := strings.Index(text, "{")
	if start == -1 {
		return ""
	}

	end := strings.LastIndex(text, "}")
	if end == -1 || end <= start {
		return ""
	}

	return text[start : end+1]
}

// SanitizeForPrompt strips characters that could break the prompt structure,
// collapses whitespace and truncates to maxLength runes.
func SanitizeForPrompt(input string, maxLength int) string {
	input = strings.ReplaceAll(input, `"`, `'`)
	input = strings.ReplaceAll(input, "`", "'")
	input = strings.ReplaceAll(input, "\x00", "")

	input = strings.Join(strings.Fields(input), " ")

	if runes := []rune(input); len(runes) > maxLength {
		input = strings.TrimSpace(string(runes[:maxLength]))
	}

	return input
}

func sanitizeReasoning(reasoning string) string {
	reasoning = strings.Join(strings.Fields(reasoning), " ")

	const maxReasoningLength = 500
	if runes := []rune(reasoning); len(runes) > maxReasoningLength {
		reasoning = strings.TrimSpace(string(runes[:maxReasoningLength]))
	}

	return reasoning
}

// hashQuery keeps raw user text out of the logs.
func hashQuery(query string) string {
	hash := sha256.Sum256([]byte(query))
	return hex.EncodeToString(hash[:8])
}
