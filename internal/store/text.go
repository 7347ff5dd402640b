package store

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText removes the inline markup publishers embed in abstracts (<i>,
// <sub>, <jats:p>...) and collapses whitespace. Only known markup tags are
// removed; anything else that merely looks like a tag, such as "n<k and k>2",
// is kept verbatim. Text without known markup is returned unchanged.
func PlainText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}

	var b strings.Builder
	stripped := false
	consumed := 0
	z := html.NewTokenizer(strings.NewReader(s))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		raw := string(z.Raw())
		consumed += len(raw)

		switch tt {
		case html.TextToken:
			b.WriteString(raw)
			continue
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			z.NextIsNotRawText()
			if isMarkupTag(string(name)) && (!hasAttr || valuedAttrs(z)) {
				stripped = true
				if isBlockTag(string(name)) {
					b.WriteByte(' ')
				}
				continue
			}
		}
		b.WriteString(raw)
	}
	if !stripped {
		return s
	}

	// An unterminated tag at the end is not part of any token
	b.WriteString(s[consumed:])
	return strings.Join(strings.Fields(html.UnescapeString(b.String())), " ")
}

// valuedAttrs reports whether every attribute of the current tag has a value.
// `<i for all i>` is prose, `<sec id="s1">` is markup.
func valuedAttrs(z *html.Tokenizer) bool {
	for {
		_, val, more := z.TagAttr()
		if len(val) == 0 {
			return false
		}
		if !more {
			return true
		}
	}
}

func localName(name string) string {
	if i := strings.LastIndexByte(name, ':'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isMarkupTag(name string) bool {
	if strings.HasPrefix(name, "jats:") || strings.HasPrefix(name, "mml:") {
		return true
	}
	switch name {
	case "i", "b", "u", "em", "strong", "sub", "sup", "sc", "span", "italic", "bold",
		"underline", "small", "tt", "list", "list-item":
		return true
	}
	return isBlockTag(name)
}

func isBlockTag(name string) bool {
	switch localName(name) {
	case "p", "br", "div", "li", "ul", "ol", "sec", "title", "abstract", "list-item",
		"h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}
