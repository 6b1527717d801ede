package telegram

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// htmlPolicy keeps only the tags Telegram's HTML parse mode understands.
var htmlPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("b", "strong", "i", "em", "u", "ins", "s", "strike", "del", "code", "pre", "blockquote", "tg-spoiler")
	p.AllowAttrs("href").OnElements("a")
	p.AllowURLSchemes("http", "https", "tg")
	p.RequireParseableURLs(true)
	return p
}()

var (
	lineBreak    = regexp.MustCompile(`(?i)<br\s*/?>|</(?:li|div|h[1-6])\s*>`)
	paragraphEnd = regexp.MustCompile(`(?i)</p\s*>`)
	listItem     = regexp.MustCompile(`(?i)<li(?:\s[^>]*)?>`)
	blankRuns    = regexp.MustCompile(`\n{3,}`)
)

// Sanitize strips markup Telegram would reject from a generated post. Block
// elements the policy removes are turned into line breaks first so their
// text does not run together.
func Sanitize(body string) string {
	body = listItem.ReplaceAllString(body, "- ")
	body = paragraphEnd.ReplaceAllString(body, "\n\n")
	body = lineBreak.ReplaceAllString(body, "\n")
	body = htmlPolicy.Sanitize(body)
	return strings.TrimSpace(blankRuns.ReplaceAllString(body, "\n\n"))
}
