package push

import (
	"context"
	"strings"

	"github.com/devvluca/EclesIA/internal/bible"
	"github.com/rs/zerolog/log"
)

// Notification kinds.
const (
	KindReminder = "reminder"
	KindVerse    = "verse"
)

const (
	reminderTitle = "Lembrete EclesIA"
	reminderBody  = "Já tirou sua dúvida hoje no Chat Eclesiástico?"
	verseTitle    = "Versículo do dia"
	verseFallback = "Confira um versículo hoje!"
)

// Payload is the JSON document delivered to the service worker.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url"`
}

// VerseSource supplies the verse of the day.
type VerseSource interface {
	RandomVerse(ctx context.Context, version string) (*bible.RandomVerse, error)
}

// ReminderPayload invites the user back to the chat.
func ReminderPayload(appURL string) Payload {
	return Payload{Title: reminderTitle, Body: reminderBody, URL: joinURL(appURL, "/chat")}
}

// VersePayload carries a random verse. When the verse cannot be fetched, or
// is empty, a generic invitation is sent instead.
func VersePayload(ctx context.Context, src VerseSource, version, appURL string) Payload {
	p := Payload{Title: verseTitle, Body: verseFallback, URL: joinURL(appURL, "/bible")}
	if src == nil {
		return p
	}

	v, err := src.RandomVerse(ctx, version)
	if err != nil {
		log.Warn().Err(err).Msg("Could not fetch verse of the day, using fallback")
		return p
	}
	if text := strings.TrimSpace(v.Text); text != "" {
		p.Body = text
	}
	return p
}

// BuildPayload returns the payload for kind, which must be KindReminder or
// KindVerse. Any other kind falls back to the reminder.
func BuildPayload(ctx context.Context, kind string, src VerseSource, version, appURL string) Payload {
	if kind == KindVerse {
		return VersePayload(ctx, src, version, appURL)
	}
	return ReminderPayload(appURL)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + path
}
