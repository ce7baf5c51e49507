package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sony/gobreaker/v2"
)

const aiUpstream = "ai"

// generateSchema reflects T into a JSON schema for structured outputs.
func generateSchema[T any]() any {
	reflector := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var v T
	return reflector.Reflect(v)
}

var seriesListSchema = generateSchema[seriesList]()

// AIClient asks a chat model for series metadata. Gemini exposes an
// OpenAI-compatible API, so the OpenAI SDK is pointed at its base URL.
type AIClient struct {
	client openai.Client
	model  string
	cb     *gobreaker.CircuitBreaker[[]SeriesInfo]
	logger *slog.Logger
}

// NewAIClient returns nil when apiKey is empty; a nil *AIClient reports
// ErrUnavailable from every method.
func NewAIClient(apiKey, baseURL, model string, logger *slog.Logger) *AIClient {
	if apiKey == "" {
		return nil
	}
	return &AIClient{
		client: openai.NewClient(
			option.WithAPIKey(apiKey),
			option.WithBaseURL(baseURL),
			option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
			// The breaker decides when to stop calling; no hidden retries.
			option.WithMaxRetries(0),
		),
		model:  model,
		cb:     newBreaker[[]SeriesInfo](aiUpstream, logger),
		logger: logger,
	}
}

// SearchSeries returns up to limit series matching a free-text query.
func (c *AIClient) SearchSeries(ctx context.Context, query string, limit int) ([]SeriesInfo, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	prompt := fmt.Sprintf(`You are the catalog assistant of a TV series tracking app.

The user searched for: %q

List up to %d TV series that best match the search (title, actor, theme or description).
Only include real, released TV series. Put the best match first.
If nothing matches, return an empty list.`, query, limit)

	return c.ask(ctx, "series_search", prompt, limit)
}

// Recommend suggests up to limit series for someone who enjoyed liked,
// never repeating anything in exclude.
func (c *AIClient) Recommend(ctx context.Context, liked, exclude []string, limit int) ([]SeriesInfo, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	prompt := fmt.Sprintf(`You are the recommendation engine of a TV series tracking app.

The user enjoyed these series:
%s

Do NOT recommend any of these (already on the user's list):
%s

Recommend up to %d real, released TV series the user is likely to enjoy.
Vary genres when possible.`, bulletList(liked), bulletList(exclude), limit)

	out, err := c.ask(ctx, "series_recommendations", prompt, limit)
	if err != nil {
		return nil, err
	}
	return dropTitles(out, exclude), nil
}

func (c *AIClient) ask(ctx context.Context, name, prompt string, limit int) ([]SeriesInfo, error) {
	return call(c.cb, func() ([]SeriesInfo, error) {
		completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
			Messages: []openai.ChatCompletionMessageParamUnion{
				openai.UserMessage(prompt),
			},
			Model: openai.ChatModel(c.model),
			ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
				OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
					JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
						Name:        name,
						Description: openai.String("A list of TV series"),
						Schema:      seriesListSchema,
						Strict:      openai.Bool(true),
					},
				},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("metadata: AI request: %w", err)
		}
		if len(completion.Choices) == 0 {
			return nil, fmt.Errorf("metadata: AI returned no choices")
		}

		raw := completion.Choices[0].Message.Content
		if raw == "" {
			return nil, fmt.Errorf("metadata: AI returned empty content (finish reason %s)",
				completion.Choices[0].FinishReason)
		}

		var list seriesList
		if err := json.Unmarshal([]byte(raw), &list); err != nil {
			return nil, fmt.Errorf("metadata: decoding AI response: %w", err)
		}

		out := clean(list.Series)
		if limit > 0 && len(out) > limit {
			out = out[:limit]
		}
		c.logger.Debug("AI response parsed", slog.String("request", name), slog.Int("series", len(out)))
		return out, nil
	})
}

func bulletList(items []string) string {
	if len(items) == 0 {
		return "- (none)"
	}
	var b strings.Builder
	for _, it := range items {
		b.WriteString("- ")
		b.WriteString(it)
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

// dropTitles removes results whose title matches one in exclude, ignoring
// case. Models do not always honor the exclusion list.
func dropTitles(in []SeriesInfo, exclude []string) []SeriesInfo {
	skip := make(map[string]bool, len(exclude))
	for _, t := range exclude {
		skip[strings.ToLower(strings.TrimSpace(t))] = true
	}
	out := in[:0]
	for _, s := range in {
		if !skip[strings.ToLower(s.Title)] {
			out = append(out, s)
		}
	}
	return out
}
