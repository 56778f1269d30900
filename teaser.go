package main

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const teaserMaxLength = 260

// makeTeaser builds a short announcement text for a feed item: title,
// a plain text summary capped at 260 characters and the item link.
func makeTeaser(title, summary, link string) string {
	var teaser strings.Builder
	title = strings.TrimSpace(title)
	if title != "" {
		teaser.WriteString(title)
	}
	if text := htmlText(summary); text != "" && text != title {
		if teaser.Len() > 0 {
			teaser.WriteString("\n\n")
		}
		teaser.WriteString(text)
	}
	text := []rune(teaser.String())
	if len(text) > teaserMaxLength {
		text = text[:teaserMaxLength]
		// Cut at the last space to avoid breaking a word
		if idx := strings.LastIndexByte(strings.TrimRight(string(text), " "), ' '); idx > teaserMaxLength/2 {
			text = []rune(string(text)[:idx])
		}
		teaser.Reset()
		teaser.WriteString(strings.TrimSpace(string(text)))
		teaser.WriteString("…")
	}
	if link != "" {
		result := teaser.String()
		if result != "" {
			return result + "\n\n" + link
		}
		return link
	}
	return teaser.String()
}

// htmlText extracts the plain text from an HTML fragment.
func htmlText(html string) string {
	html = strings.TrimSpace(html)
	if html == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}
	return strings.TrimSpace(doc.Text())
}
