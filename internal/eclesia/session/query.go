package session

import (
	"fmt"
	"strings"

	"github.com/devvluca/EclesIA/internal/eclesia"
)

// BuildQuery renders the prior messages, oldest first, into a context block
// followed by the new message. Without history the message is sent as is.
func BuildQuery(history []eclesia.Message, text string) string {
	var b strings.Builder
	for _, msg := range history {
		if msg.Open || strings.TrimSpace(msg.Content) == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("Histórico da conversa:\n")
		}
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	if b.Len() == 0 {
		return text
	}
	fmt.Fprintf(&b, "\nPergunta atual: %s", text)
	return b.String()
}

// BuildPassageQuery frames a question about a selected scripture passage.
func BuildPassageQuery(passage, question string) string {
	return fmt.Sprintf("Texto selecionado: \"%s\". Pergunta: \"%s\"", passage, question)
}
