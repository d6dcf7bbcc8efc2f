// Package mailtext renders HTML email bodies as plain text suitable
// for a terminal viewport.
package mailtext

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespaceRe = regexp.MustCompile(`[^\S\n]+`)
	newlineRe    = regexp.MustCompile(`\n{3,}`)
	// Zero-width and other invisible characters that survive HTML
	// stripping and garble terminal output.
	invisibleRe = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{2060}-\x{2064}]+`)
)

// Render converts an HTML email body to clean plain text. Non-HTML
// input passes through with only whitespace normalization.
func Render(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements become line breaks.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(
		func(_ int, s *goquery.Selection) {
			s.PrependHtml("\n")
		})

	text := doc.Text()
	text = invisibleRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	clean := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			clean = append(clean, line)
		}
	}
	text = strings.Join(clean, "\n")
	text = newlineRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
