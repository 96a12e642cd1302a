package extract

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	cnBrackets = regexp.MustCompile(`（[^）]*）`)
	enBrackets = regexp.MustCompile(`\([^)]*\)`)
)

// ParseMoePoints extracts the 萌点 tag list from a moegirl character
// page infobox. Footnote markers are dropped, bracketed qualifiers are
// stripped, and duplicates are removed while preserving first-seen
// order.
func ParseMoePoints(html []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse moegirl page: %w", err)
	}

	var raw []string
	doc.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		th := tr.Find("th").FilterFunction(func(_ int, s *goquery.Selection) bool {
			return strings.Contains(s.Text(), "萌点")
		})
		if th.Length() == 0 {
			return
		}
		td := tr.Find("td").First()
		if td.Length() == 0 {
			return
		}

		// drop reference markers before reading the cell
		td.Find("sup").Remove()

		td.Find("a").Each(func(_ int, a *goquery.Selection) {
			if title, ok := a.Attr("title"); ok && title != "" {
				raw = append(raw, title)
			}
		})
		for _, p := range strings.Split(td.Text(), "、") {
			if p = strings.TrimSpace(p); p != "" {
				raw = append(raw, p)
			}
		}
	})

	seen := make(map[string]struct{}, len(raw))
	var points []string
	for _, t := range raw {
		t = stripBrackets(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		points = append(points, t)
	}
	return points, nil
}

// stripBrackets removes bracketed qualifiers, both fullwidth and
// ASCII, and collapses leftover whitespace.
func stripBrackets(text string) string {
	text = cnBrackets.ReplaceAllString(text, "")
	text = enBrackets.ReplaceAllString(text, "")
	return strings.Join(strings.Fields(text), " ")
}
