// Package generation invokes the external model to produce a caption and
// hashtag set for a theme under a chosen strategy, and orchestrates the
// credit-metered flow around that call.
package generation

import (
	"context"
	"fmt"
	"time"

	"github.com/tagmaster/tagmaster-api/internal/models"
	"github.com/tagmaster/tagmaster-api/internal/services/circuitbreaker"
	"github.com/tagmaster/tagmaster-api/internal/utils"
	"github.com/tagmaster/tagmaster-api/internal/utils/clientcache"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"google.golang.org/genai"
)

// systemInstruction enforces the delimited output format. JSON schema cannot
// be combined with the Google Search tool, so the format is textual.
const systemInstruction = `You are an expert social media manager specializing in Instagram growth.
Your goal is to generate a VIRAL CAPTION and the best hashtags for a user's post.
You MUST use Google Search to validate that tags are relevant and currently active.

STRICT OUTPUT FORMAT:
1. Start with the header "## CAPTION" followed by a highly engaging, hook-based caption (max 2 sentences) with 1-2 emojis.
2. Next, use the header "## HASHTAGS" followed by the hashtags grouped by category.
3. Finally, use the header "## ANALYSIS" followed by a brief strategy breakdown.
`

// Client produces a generation result for a theme and strategy.
type Client interface {
	Generate(ctx context.Context, theme string, strategy models.Strategy) (*models.GenerationResult, error)
}

// GeminiClient calls the Gemini API with search grounding enabled.
type GeminiClient struct {
	cfg         models.GeminiConfig
	clientCache *clientcache.Cache[*genai.Client]
	breaker     *circuitbreaker.CircuitBreaker
}

func NewGeminiClient(cfg models.GeminiConfig) *GeminiClient {
	return &GeminiClient{
		cfg:         cfg,
		clientCache: clientcache.NewCache[*genai.Client](),
		breaker:     circuitbreaker.New("gemini"),
	}
}

func (c *GeminiClient) client(ctx context.Context) (*genai.Client, error) {
	return c.clientCache.GetOrCreate("gemini", func() (*genai.Client, error) {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  c.cfg.APIKey,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		return client, nil
	})
}

// Generate runs one grounded generation call with a bounded timeout. Transport
// and provider errors are wrapped so the raw cause reaches the logs but never
// the end user.
func (c *GeminiClient) Generate(ctx context.Context, theme string, strategy models.Strategy) (*models.GenerationResult, error) {
	if !c.breaker.CanExecute() {
		return nil, models.NewGenerationError(fmt.Errorf("gemini circuit breaker is open"))
	}

	client, err := c.client(ctx)
	if err != nil {
		return nil, models.NewGenerationError(err)
	}

	timeout := time.Duration(c.cfg.TimeoutSeconds) * time.Second
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemInstruction, genai.RoleUser),
		Tools:             []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
		Temperature:       genai.Ptr[float32](0.7),
	}

	startTime := time.Now()
	resp, err := client.Models.GenerateContent(callCtx, c.cfg.Model, genai.Text(buildUserPrompt(theme, strategy)), config)
	duration := time.Since(startTime)

	if err != nil {
		c.breaker.RecordFailure()
		fiberlog.Errorf("Gemini generate request failed after %v: %v", duration, err)
		return nil, models.NewGenerationError(err)
	}
	c.breaker.RecordSuccess()

	raw := resp.Text()
	if raw == "" {
		raw = "No suggestions generated."
	}

	fiberlog.Infof("Gemini generate request completed in %v (model: %s)", duration, c.cfg.Model)

	result := ParseResponse(raw, ExtractSources(resp), strategy.ID)
	return &result, nil
}

// buildUserPrompt assembles the per-request prompt embedding the theme and the
// strategy's rule text.
func buildUserPrompt(theme string, strategy models.Strategy) string {
	buf := utils.Get()
	defer utils.Put(buf)

	_, _ = buf.WriteString("Theme: \"")
	_, _ = buf.WriteString(theme)
	_, _ = buf.WriteString("\"\nStrategy: ")
	_, _ = buf.WriteString(strategy.Name)
	_, _ = buf.WriteString("\nStrategy Rules: ")
	_, _ = buf.WriteString(strategy.PromptContext)
	_, _ = buf.WriteString("\n\nTask:\n1. Write a viral caption.\n2. Search for current trends related to \"")
	_, _ = buf.WriteString(theme)
	_, _ = buf.WriteString("\".\n3. Provide optimized hashtags based on the strategy.\n4. Explain the choice.")

	return buf.String()
}
