package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ziadkadry99/paper2code/internal/rag"
)

// Answer replies to a user question using retrieved passages and a short
// description of the session's state.
func (p *Pipeline) Answer(ctx context.Context, question string, passages []rag.Passage, sessionContext string) (string, error) {
	knowledge := ""
	if formatted := rag.Format(passages); formatted != "" {
		knowledge = fmt.Sprintf(retrievedContextTemplate, formatted)
	}
	state := ""
	if sessionContext != "" {
		state = "\nSession state: " + sessionContext
	}

	answer, err := p.complete(ctx, "chat", p.settings.Temperatures.Chat, false,
		chatSystemPrompt, fmt.Sprintf(chatPromptTemplate, question, knowledge, state))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(answer), nil
}
