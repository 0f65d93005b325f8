package htmlutil

import (
	"bytes"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// GetText concatenates every text node below `node` in document order.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	// script and style contents are never visible text
	if node.Type == html.ElementNode && (node.Data == "script" || node.Data == "style") {
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

var whitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

// anything that looks like an opening, closing or self-closing tag
var markupTag = regexp.MustCompile(`</?[a-zA-Z][^<>]*>`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if unicode.IsPrint(c) || unicode.IsSpace(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// NormalizeSpace collapses whitespace runs into a single space and trims the result.
func NormalizeSpace(s string) string {
	s = removeNonPrintable(s)
	s = whitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ContainsMarkup reports whether `s` contains something shaped like an html tag.
func ContainsMarkup(s string) bool {
	return markupTag.MatchString(s)
}

// CleanText normalizes whitespace in `s`, it returns false if the result is
// empty or still contains markup.
func CleanText(s string) (string, bool) {
	s = NormalizeSpace(s)
	if s == "" || ContainsMarkup(s) {
		return "", false
	}
	return s, true
}
