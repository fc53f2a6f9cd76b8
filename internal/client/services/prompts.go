package services

import (
	"context"
	"math/rand"

	"github.com/daybook-app/daybook/internal/client/genai"
	"github.com/daybook-app/daybook/internal/logging"
)

// cannedPrompts keeps the prompt feature working when generation is
// unavailable or unconfigured.
var cannedPrompts = []string{
	"What surprised you today?",
	"Describe a moment today you want to remember a year from now.",
	"What is something you avoided today, and why?",
	"Who did you talk to today, and what stayed with you?",
	"What would have made today better?",
}

// PromptService hands out journaling prompts, generated when possible and
// canned otherwise.
type PromptService struct {
	gen genai.Generator
	log logging.Logger
}

// NewPromptService accepts a nil generator, which means canned prompts only.
func NewPromptService(gen genai.Generator, log logging.Logger) *PromptService {
	return &PromptService{gen: gen, log: log}
}

func (s *PromptService) Prompt(ctx context.Context, topic string) string {
	if s.gen != nil {
		prompt, err := s.gen.Generate(ctx, topic)
		if err == nil {
			return prompt
		}
		s.log.Warn(ctx, "prompt generation failed, using canned prompt", "error", err)
	}
	return cannedPrompts[rand.Intn(len(cannedPrompts))]
}
