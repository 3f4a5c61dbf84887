package dify

import (
	"regexp"
	"strings"
)

var (
	markupReplacer = strings.NewReplacer("*", "", "_", "", "~", "", "`", "", ">", "", "#", "", "-", "")
	linkPattern    = regexp.MustCompile(`\[(.*?)\]\(.*?\)`)
)

// Sanitize strips lightweight markdown markup from answer text and collapses
// [label](url) links to their label.
func Sanitize(s string) string {
	s = markupReplacer.Replace(s)
	return linkPattern.ReplaceAllString(s, "$1")
}
