package conversation

import (
	"testing"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"github.com/stretchr/testify/assert"
)

func TestDeriveName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "stopwords removed", input: "O que é a IECB?", want: "IECB"},
		{name: "capped at four words", input: "Explique batismo, eucaristia, confirmação, reconciliação e matrimônio", want: "Explique batismo eucaristia confirmação"},
		{name: "case insensitive stopwords", input: "Qual A História Da Igreja Anglicana", want: "História Igreja Anglicana"},
		{name: "only stopwords", input: "o que é isso?", want: eclesia.DefaultConversationName},
		{name: "empty", input: "   ", want: eclesia.DefaultConversationName},
		{name: "numbers kept", input: "1 Coríntios 12 dons", want: "1 Coríntios 12 dons"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveName(tt.input))
		})
	}
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, eclesia.DefaultConversationName, NormalizeName(""))
	assert.Equal(t, eclesia.DefaultConversationName, NormalizeName(" \t\n"))
	assert.Equal(t, "Liturgia", NormalizeName("  Liturgia "))
}
