package crawler

import (
	"io"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// Parser extracts image candidates and anchors from HTML content.
//
// Design decision: We use golang.org/x/net/html rather than regular
// expressions because it tolerates the malformed markup common on the web
// and yields elements in document order.
type Parser struct {
	// baseURL is the address of the page being parsed. Relative references
	// resolve against it.
	baseURL *url.URL

	// imageAttributes is the <img> attribute preference list.
	imageAttributes []string
}

// ParseResult contains the information extracted from one page.
type ParseResult struct {
	// Title is the page title from the <title> tag.
	Title string

	// Images holds resolved image addresses in document order. Duplicates
	// are kept; deduplication happens across the whole crawl.
	Images []string

	// Links holds resolved <a href> targets in document order.
	Links []string
}

// NewParser creates a Parser for a page at baseURL. imageAttributes is
// the <img> attribute preference list; the first attribute with a non-empty
// value wins.
func NewParser(baseURL string, imageAttributes []string) (*Parser, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &Parser{baseURL: u, imageAttributes: imageAttributes}, nil
}

// Parse walks the document and returns the images and links it contains.
func (p *Parser) Parse(content io.Reader) (*ParseResult, error) {
	doc, err := html.Parse(content)
	if err != nil {
		return nil, err
	}

	result := &ParseResult{
		Images: make([]string, 0),
		Links:  make([]string, 0),
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.processElement(n, result)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return result, nil
}

func (p *Parser) processElement(n *html.Node, result *ParseResult) {
	switch n.Data {
	case "title":
		if result.Title == "" && n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			result.Title = strings.TrimSpace(n.FirstChild.Data)
		}

	case "img":
		src := p.imageSource(n)
		if src == "" || strings.HasPrefix(src, "data:") {
			return
		}
		if resolved := p.resolve(src); resolved != "" {
			result.Images = append(result.Images, resolved)
		}

	case "a":
		href, ok := getAttr(n, "href")
		if !ok {
			return
		}
		if resolved := p.resolve(href); resolved != "" {
			result.Links = append(result.Links, resolved)
		}
	}
}

// imageSource returns the value of the first preferred attribute that is
// present and non-empty.
func (p *Parser) imageSource(n *html.Node) string {
	for _, name := range p.imageAttributes {
		if v, ok := getAttr(n, name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// resolve turns ref into an absolute address relative to the page.
// It returns "" when ref cannot be parsed.
func (p *Parser) resolve(ref string) string {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ""
	}
	return p.baseURL.ResolveReference(u).String()
}

// getAttr returns the value of the named attribute and whether it is present.
// Attribute names are matched case-insensitively, as the tokenizer lowercases them.
func getAttr(n *html.Node, name string) (string, bool) {
	for _, attr := range n.Attr {
		if strings.EqualFold(attr.Key, name) {
			return attr.Val, true
		}
	}
	return "", false
}
