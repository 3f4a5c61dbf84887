package conversation

import (
	"strings"
	"unicode"

	"github.com/devvluca/EclesIA/internal/eclesia"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// maxNameWords caps derived conversation names.
const maxNameWords = 4

// stopwords are dropped when deriving a conversation name.
var stopwords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`
		a à ao aos as às o os um uma uns umas
		de do da dos das d em no na nos nas num numa
		e é ou mas se que quê qual quais quem onde quando como porque por que
		para pra pro pelo pela pelos pelas com sem sobre entre até
		eu tu ele ela nós vós eles elas você vocês me te se lhe nos vos
		meu minha meus minhas teu tua seu sua seus suas nosso nossa
		isso isto esse essa esses essas este esta estes estas aquele aquela
		ser é são foi era está estão tem têm há ter fazer pode posso
		não sim muito mais menos já também ainda só
		olá oi bom boa dia tarde noite por favor obrigado obrigada
	`) {
		stopwords[w] = struct{}{}
	}
}

// DeriveName builds a short conversation name from the first user message:
// punctuation is trimmed from each word, stopwords are removed, and at most
// four words are kept. When nothing significant remains the default label is
// returned.
func DeriveName(text string) string {
	lower := cases.Lower(language.BrazilianPortuguese)
	var words []string
	for _, raw := range strings.Fields(text) {
		word := strings.TrimFunc(raw, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if word == "" {
			continue
		}
		if _, stop := stopwords[lower.String(word)]; stop {
			continue
		}
		words = append(words, word)
		if len(words) == maxNameWords {
			break
		}
	}

	if len(words) == 0 {
		return eclesia.DefaultConversationName
	}
	return strings.Join(words, " ")
}

// NormalizeName coerces blank names to the default label.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return eclesia.DefaultConversationName
	}
	return name
}
