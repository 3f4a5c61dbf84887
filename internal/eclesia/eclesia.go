// Package eclesia provides the core abstractions shared by the EclesIA chat
// client: role-tagged messages, the signed-in identity, and the ChatProvider
// interface that streaming chat backends (dify, etc.) implement.
package eclesia

import (
	"context"
	"strings"

	"github.com/pkg/errors"
)

const (
	// DefaultConversationName is shown for conversations that have not been
	// named yet, and replaces blank names on rename.
	DefaultConversationName = "Nova conversa"

	// ApologyMessage replaces the assistant reply when a stream fails.
	ApologyMessage = "Desculpe, ocorreu um erro ao obter a resposta. Tente novamente mais tarde."

	// WelcomeMessage is the greeting shown at the top of an empty conversation.
	WelcomeMessage = "Olá! Sou a EclesIA, assistente virtual da Igreja Episcopal Carismática do Brasil. Como posso ajudar com suas dúvidas sobre nossa igreja ou a tradição Anglicana?"
)

// Identity is the signed-in owner of conversations.
type Identity struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	AccessToken string `json:"access_token"`
}

// Valid reports whether the identity can own remote records.
func (i *Identity) Valid() bool {
	return i != nil && strings.TrimSpace(i.UserID) != ""
}

// ChatRequest is a single streaming completion request.
type ChatRequest struct {
	Query string
	User  string
}

// FragmentStream yields assistant text fragments in arrival order.
// Next returns io.EOF once the stream is exhausted.
type FragmentStream interface {
	Next() (string, error)
	Close() error
}

// ChatProvider defines the interface for streaming chat backends.
//
// Example usage:
//
//	stream, err := provider.StreamChat(ctx, eclesia.ChatRequest{Query: "O que é a IECB?", User: id.UserID})
//	for {
//		fragment, err := stream.Next()
//		if err == io.EOF {
//			break
//		}
//		...
//	}
type ChatProvider interface {
	// StreamChat opens a streaming request. Transport failures and non-success
	// statuses are returned here, before any fragment is produced.
	StreamChat(ctx context.Context, req ChatRequest) (FragmentStream, error)
}

// ParseRole parses a stored role tag. Unknown tags are rejected.
//
// Example:
//
//	role, err := ParseRole("assistant")
//	// role = RoleAssistant
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", errors.Errorf("invalid role %q (expected user or assistant)", s)
	}
}
