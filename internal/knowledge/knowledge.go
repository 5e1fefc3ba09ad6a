// Package knowledge answers free-text product questions from a fixed
// knowledge document, using a side completion call. Runs paused on the
// knowledge-lookup tool call are resumed with answers produced here.
package knowledge

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

//go:embed knowledge.md
var knowledgeDoc string

const instructionsTemplate = `# Instructions
* You have the knowledge and information of the project **SkillSynx Ai**.
* You are not a code generator.
* The word "this" in a user query targets the **SkillSynx Ai** project.

# Important Note
* You must generate the response as plain text.
* Based on the user query, answer only from the <context></context> block below.

<context>
%s
</context>`

type Base struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

func NewBase(apiKey, model string, maxTokens int, temperature float64, logger *zap.Logger) *Base {
	return &Base{
		client:      openai.NewClient(apiKey),
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logger,
	}
}

// Lookup answers a single query against the embedded knowledge document.
func (b *Base) Lookup(ctx context.Context, query string) (string, error) {
	resp, err := b.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: b.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: instructions(),
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf("<user_query>\n%s\n</user_query>", query),
				},
			},
			MaxTokens:   b.maxTokens,
			Temperature: float32(b.temperature),
		},
	)
	if err != nil {
		return "", fmt.Errorf("knowledge lookup failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("knowledge lookup returned no choices")
	}

	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func instructions() string {
	return fmt.Sprintf(instructionsTemplate, strings.TrimSpace(knowledgeDoc))
}
