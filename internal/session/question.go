package session

import (
	"strings"
	"unicode"
)

var questionWords = map[string]bool{
	"what": true, "how": true, "why": true, "when": true, "where": true,
	"which": true, "who": true, "whom": true, "whose": true,
	"is": true, "are": true, "can": true, "could": true, "does": true,
	"do": true, "did": true, "should": true, "would": true, "will": true,
	"explain": true,
}

// Question words that may appear anywhere in a message written in Chinese.
var cjkQuestionWords = []string{"什么", "如何", "为什么", "怎么", "哪个", "哪些", "谁", "何时", "何地", "是否"}

// IsQuestion reports whether a chat message should be answered from the
// knowledge base rather than with a status reply.
func IsQuestion(message string) bool {
	message = strings.TrimSpace(message)
	if strings.HasSuffix(message, "?") || strings.HasSuffix(message, "？") {
		return true
	}
	first, _, _ := strings.Cut(message, " ")
	first = strings.ToLower(strings.TrimFunc(first, unicode.IsPunct))
	if questionWords[first] {
		return true
	}
	for _, w := range cjkQuestionWords {
		if strings.Contains(message, w) {
			return true
		}
	}
	return false
}
