package onenote

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// skippedElements carry no readable page text.
var skippedElements = map[string]bool{
	"script": true,
	"style":  true,
}

// HTMLToText extracts the visible text of a page. Every text node is
// trimmed and placed on its own line; blank nodes are dropped.
func HTMLToText(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}
	var lines []string
	collectText(doc.Selection, &lines)
	return strings.Join(lines, "\n"), nil
}

func collectText(sel *goquery.Selection, lines *[]string) {
	sel.Contents().Each(func(_ int, s *goquery.Selection) {
		name := goquery.NodeName(s)
		switch {
		case name == "#text":
			if t := strings.TrimSpace(s.Text()); t != "" {
				*lines = append(*lines, t)
			}
		case skippedElements[name]:
		default:
			collectText(s, lines)
		}
	})
}
