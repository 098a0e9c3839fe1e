package product

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var thumbnailPattern = regexp.MustCompile(`(?i)https?://[^\s,"]+?\.(?:jpg|jpeg|png|webp|svg)`)

// PlainText converts rich-text markup into plain text. Text nodes are trimmed
// and joined by single spaces; script and style contents are dropped.
func PlainText(markup string) (string, error) {
	if strings.TrimSpace(markup) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("parse markup: %w", err)
	}
	var parts []string
	doc.Find("body").Each(func(_ int, sel *goquery.Selection) {
		for _, n := range sel.Nodes {
			parts = collectText(n, parts)
		}
	})
	return strings.Join(parts, " "), nil
}

func collectText(n *html.Node, parts []string) []string {
	if n.Type == html.TextNode {
		if text := strings.TrimSpace(n.Data); text != "" {
			parts = append(parts, text)
		}
		return parts
	}
	if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
		return parts
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		parts = collectText(c, parts)
	}
	return parts
}

// Thumbnail returns the first well-formed image URL in imageURLs.
func Thumbnail(imageURLs string) (string, bool) {
	match := thumbnailPattern.FindString(imageURLs)
	return match, match != ""
}
