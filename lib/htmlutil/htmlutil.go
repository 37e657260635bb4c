package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var innerWhitespace = regexp.MustCompile(`\s+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// Clean drops non-printable characters, trims and collapses inner whitespace
// (including the &nbsp; and &#13; the portal sprinkles everywhere) to one space.
func Clean(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = removeNonPrintable(s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Squash removes every whitespace character.
func Squash(s string) string {
	return innerWhitespace.ReplaceAllString(strings.ReplaceAll(s, "\u00a0", ""), "")
}

// Text is the cleaned text of every node in the selection.
func Text(sel *goquery.Selection) string {
	var buffer bytes.Buffer
	for _, n := range sel.Nodes {
		getTextRecursive(n, &buffer)
	}
	return Clean(buffer.String())
}

// OwnTexts returns the cleaned, non-empty text nodes that are direct children of
// the first node in the selection, in document order.
func OwnTexts(sel *goquery.Selection) []string {
	if sel.Length() == 0 {
		return nil
	}
	var out []string
	for child := sel.Nodes[0].FirstChild; child != nil; child = child.NextSibling {
		if child.Type != html.TextNode {
			continue
		}
		text := Clean(child.Data)
		if text != "" {
			out = append(out, text)
		}
	}
	return out
}

// Href is the href of the first node in the selection, "" when missing.
func Href(sel *goquery.Selection) string {
	return sel.First().AttrOr("href", "")
}
