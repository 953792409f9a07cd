package fetch

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// noiseTags never contribute text.
var noiseTags = map[string]bool{
	"script": true, "style": true, "noscript": true, "template": true,
	"nav": true, "header": true, "footer": true, "aside": true,
	"form": true, "button": true, "iframe": true, "svg": true,
}

// noiseMarkers in a class or id mark page chrome rather than content.
var noiseMarkers = []string{
	"sidebar", "advert", "cookie", "popup", "modal", "overlay",
	"newsletter", "subscribe", "breadcrumb", "social", "share",
}

// blockTags end a paragraph.
var blockTags = map[string]bool{
	"p": true, "div": true, "section": true, "article": true, "main": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"blockquote": true, "pre": true, "table": true, "tr": true,
	"ul": true, "ol": true, "dl": true, "figure": true,
}

// Extract parses an HTML document and returns its title and the readable
// text of its main content. The first <main>, <article> or role="main"
// element is preferred; otherwise the whole body is used.
func Extract(r io.Reader) (title, text string, err error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	if t := find(doc, func(n *html.Node) bool { return n.Data == "title" }); t != nil {
		title = strings.Join(strings.Fields(textOf(t)), " ")
	}

	root := find(doc, isMainContent)
	if root == nil {
		root = find(doc, func(n *html.Node) bool { return n.Data == "body" })
	}
	if root == nil {
		root = doc
	}

	var b strings.Builder
	render(&b, root)
	return title, cleanText(b.String()), nil
}

func isMainContent(n *html.Node) bool {
	return n.Data == "main" || n.Data == "article" || attr(n, "role") == "main"
}

func isNoise(n *html.Node) bool {
	if noiseTags[n.Data] {
		return true
	}
	if attr(n, "aria-hidden") == "true" {
		return true
	}
	marks := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	for _, m := range noiseMarkers {
		if strings.Contains(marks, m) {
			return true
		}
	}
	return false
}

func render(b *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(collapse(n.Data))
		return
	case html.CommentNode:
		return
	case html.ElementNode:
		if isNoise(n) {
			return
		}
		switch {
		case n.Data == "br":
			b.WriteByte('\n')
			return
		case n.Data == "li":
			b.WriteString("\n• ")
		case blockTags[n.Data]:
			b.WriteString("\n\n")
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		render(b, c)
	}
	if n.Type != html.ElementNode {
		return
	}
	switch {
	case blockTags[n.Data]:
		b.WriteByte('\n')
	case n.Data == "td" || n.Data == "th":
		b.WriteByte(' ')
	}
}

// collapse squeezes whitespace runs in s to single spaces, keeping a
// leading or trailing space where s had one.
func collapse(s string) string {
	out := strings.Join(strings.Fields(s), " ")
	if out == "" {
		if s != "" {
			return " "
		}
		return ""
	}
	if isSpace(s[0]) {
		out = " " + out
	}
	if isSpace(s[len(s)-1]) {
		out += " "
	}
	return out
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

// cleanText collapses runs of spaces on each line and keeps at most one
// blank line between paragraphs.
func cleanText(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			blank = len(out) > 0
			continue
		}
		if blank {
			out = append(out, "")
			blank = false
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n.Type == html.ElementNode && match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := find(c, match); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}
