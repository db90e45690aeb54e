// Package generator answers customer questions with a chat-completion model
// grounded on retrieved catalogue and FAQ text.
package generator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	sdk "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"watchrag/internal/domain"
	"watchrag/internal/retry"
)

var _ domain.Generator = (*Generator)(nil)

const (
	DefaultBaseURL   = "https://api.deepseek.com"
	DefaultModel     = "deepseek-chat"
	DefaultAPIKeyEnv = "DEEPSEEK_API_KEY"

	// Greeting is the opening line every answer must use.
	Greeting = "¡Hola! 😊 ¿En qué puedo ayudarte hoy?"

	DefaultPersona = "Actúa como un asistente útil y amable de una relojería."

	// DefaultTemplate uses the ContextPlaceholder and QuestionPlaceholder.
	DefaultTemplate = `Eres el asistente virtual de una relojería.
Saluda siempre con: "` + Greeting + `" y nunca digas que eres un experto.
Responde SIEMPRE en español, de forma amable, útil y natural.
Usa el contexto si es relevante. Si el contexto no tiene la información exacta,
ofrece ayuda general sobre relojería, horarios o servicios, sin inventar datos concretos
como precios, existencias o códigos.

Contexto disponible:
{context}

Pregunta del cliente:
{question}

Responde de forma clara, breve y con tono conversacional.
`
)

// Placeholders a prompt template must contain exactly once each.
const (
	ContextPlaceholder  = "{context}"
	QuestionPlaceholder = "{question}"
)

// contextSeparator joins retrieved documents into one context block.
const contextSeparator = "\n\n"

// Config configures the chat-completion client.
type Config struct {
	BaseURL           string
	APIKeyEnv         string
	Model             string
	Persona           string
	Template          string
	Timeout           time.Duration
	MaxRetries        uint64
	RequestsPerSecond float64
}

// Generator is an OpenAI-compatible chat-completion client.
type Generator struct {
	api        sdk.Client
	model      string
	persona    string
	template   string
	maxRetries uint64
	limiter    *rate.Limiter
}

// New creates a generator, reading the API key from cfg.APIKeyEnv.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrInvalidConfig, cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Persona == "" {
		cfg.Persona = DefaultPersona
	}
	if cfg.Template == "" {
		cfg.Template = DefaultTemplate
	}
	if err := ValidateTemplate(cfg.Template); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	g := &Generator{
		api: sdk.NewClient(
			option.WithAPIKey(key),
			option.WithBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/"),
			option.WithRequestTimeout(cfg.Timeout),
			option.WithMaxRetries(0),
		),
		model:      cfg.Model,
		persona:    cfg.Persona,
		template:   cfg.Template,
		maxRetries: cfg.MaxRetries,
	}
	if cfg.RequestsPerSecond > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return g, nil
}

// ValidateTemplate checks that template holds each placeholder exactly once.
func ValidateTemplate(template string) error {
	for _, p := range []string{ContextPlaceholder, QuestionPlaceholder} {
		if n := strings.Count(template, p); n != 1 {
			return fmt.Errorf("%w: prompt template must contain %s once, found %d", domain.ErrInvalidConfig, p, n)
		}
	}
	return nil
}

// BuildPrompt fills template with the joined context documents and the
// question, verbatim. Other text in the template, including '%', is kept
// as written and the substituted values are not scanned again.
func BuildPrompt(template string, contextDocs []string, question string) string {
	return strings.NewReplacer(
		ContextPlaceholder, strings.Join(contextDocs, contextSeparator),
		QuestionPlaceholder, question,
	).Replace(template)
}

// Generate runs one non-streaming completion.
func (g *Generator) Generate(ctx context.Context, question string, contextDocs []string) (string, error) {
	params := sdk.ChatCompletionNewParams{
		Model: sdk.ChatModel(g.model),
		Messages: []sdk.ChatCompletionMessageParamUnion{
			sdk.SystemMessage(g.persona),
			sdk.UserMessage(BuildPrompt(g.template, contextDocs, question)),
		},
	}

	var answer string
	err := retry.Do(ctx, g.maxRetries, func() error {
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return retry.Permanent(err)
			}
		}
		resp, err := g.api.Chat.Completions.New(ctx, params)
		if err != nil {
			if !transient(err) {
				return retry.Permanent(err)
			}
			return err
		}
		if len(resp.Choices) == 0 {
			return retry.Permanent(errors.New("completion has no choices"))
		}
		answer = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrGeneration, err)
	}
	return answer, nil
}

func transient(err error) bool {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return !errors.Is(err, context.Canceled)
}
