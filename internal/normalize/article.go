package normalize

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Containers tried in order for the main body. Precision over recall:
// under-extracting beats polluting the text with navigation and ads.
var contentSelectors = []string{
	"article",
	"main",
	"[role=main]",
	"div[itemprop=articleBody]",
	"div.article-body",
	"div.post-content",
	"div.entry-content",
	"div#content",
}

// ExtractArticleText pulls the main-body text out of an article page.
// It prefers paragraph text inside a recognized content container and
// falls back to a visible-text walk of the whole document only when no
// container yields enough.
func ExtractArticleText(pageHTML string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return fallbackText(pageHTML)
	}

	doc.Find("script, style, noscript, iframe, nav, header, footer, aside").Remove()

	for _, sel := range contentSelectors {
		container := doc.Find(sel).First()
		if container.Length() == 0 {
			continue
		}
		text := paragraphText(container)
		if len(text) >= 200 {
			return text
		}
	}

	// No recognizable container; take paragraphs document-wide before
	// resorting to the raw text walk.
	if text := paragraphText(doc.Selection); len(text) >= 200 {
		return text
	}
	return fallbackText(pageHTML)
}

func paragraphText(sel *goquery.Selection) string {
	var parts []string
	sel.Find("p").Each(func(_ int, p *goquery.Selection) {
		t := strings.TrimSpace(p.Text())
		// Short fragments are usually captions, bylines, or link lists.
		if len(t) >= 40 {
			parts = append(parts, t)
		}
	})
	return strings.Join(parts, "\n\n")
}

// fallbackText walks every visible text node, skipping script-like
// subtrees.
func fallbackText(pageHTML string) string {
	root, err := html.Parse(strings.NewReader(pageHTML))
	if err != nil {
		return ""
	}

	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "nav", "header", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return strings.TrimSpace(buf.String())
}
