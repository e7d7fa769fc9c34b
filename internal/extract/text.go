// internal/extract/text.go
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/valpere/relay-scraper/internal/utils"
)

var skipText = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// TextNodes returns the trimmed, non-empty text nodes under sel in document
// order, skipping script and style content.
func TextNodes(sel *goquery.Selection) []string {
	return nodeTexts(sel.Nodes...)
}

func nodeTexts(nodes ...*html.Node) []string {
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if s := utils.CollapseSpaces(n.Data); s != "" {
				out = append(out, s)
			}
			return
		case html.ElementNode:
			if skipText[n.Data] {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return out
}

// TextSep joins the text nodes under sel with sep.
func TextSep(sel *goquery.Selection, sep string) string {
	return strings.Join(TextNodes(sel), sep)
}

// Lines returns the document text one text node per line.
func Lines(doc *goquery.Document) []string {
	return TextNodes(doc.Selection)
}

// NextTextAfter finds the first element whose own trimmed text equals label
// (case-insensitive) and returns the first non-empty text node that follows
// it in document order, outside its subtree.
func NextTextAfter(doc *goquery.Document, label string) string {
	var target *html.Node
	doc.Find("body *").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(utils.CollapseSpaces(s.Text()), label) {
			return true
		}
		// Nested wrappers of the same label: prefer the innermost one.
		if target == nil || isAncestor(target, s.Nodes[0]) {
			target = s.Nodes[0]
			return true
		}
		return false
	})
	if target == nil {
		return ""
	}

	for n := target; n != nil; n = n.Parent {
		for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
			if texts := nodeTexts(sib); len(texts) > 0 {
				return texts[0]
			}
		}
	}
	return ""
}

func isAncestor(a, n *html.Node) bool {
	for p := n.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

// Title returns the trimmed text of the first element matching selector.
func Title(doc *goquery.Document, selector string) string {
	return utils.CollapseSpaces(doc.Find(selector).First().Text())
}

// Anchors returns absolute, fragment-stripped http(s) hrefs of every anchor
// in doc, resolved against base.
func Anchors(doc *goquery.Document, base string) []string {
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if u := AbsHref(s, base); u != "" {
			out = append(out, u)
		}
	})
	return out
}

// AbsHref resolves the href attribute of s against base. It returns "" for
// non-http(s) targets.
func AbsHref(s *goquery.Selection, base string) string {
	href, ok := s.Attr("href")
	if !ok || strings.TrimSpace(href) == "" {
		return ""
	}
	u := utils.StripFragment(utils.Absolutize(base, href))
	if !utils.IsHTTPURL(u) {
		return ""
	}
	return u
}
