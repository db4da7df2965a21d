// Package markup is a small document tree over golang.org/x/net/html with
// the handful of selection and editing operations book normalization needs.
package markup

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Document is parsed HTML document. Fragments are parsed as full documents,
// their content ends up in body.
type Document struct {
	root *html.Node
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse reads HTML from r, leading UTF-8 byte order mark is skipped.
func Parse(r io.Reader) (*Document, error) {
	br := bufio.NewReader(r)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}
	root, err := html.ParseWithOptions(br, html.ParseOptionEnableScripting(true))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &Document{root: root}, nil
}

// ParseString is Parse for in-memory markup.
func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func (d *Document) Root() *html.Node {
	return d.root
}

// Body returns body element, creating one when document somehow lacks it.
func (d *Document) Body() *html.Node {
	if b := Find(d.root, atom.Body); b != nil {
		return b
	}
	b := NewElement(atom.Body)
	parent := Find(d.root, atom.Html)
	if parent == nil {
		parent = d.root
	}
	parent.AppendChild(b)
	return b
}

// NewElement creates detached element node.
func NewElement(a atom.Atom, attrs ...html.Attribute) *html.Node {
	return &html.Node{
		Type:     html.ElementNode,
		DataAtom: a,
		Data:     a.String(),
		Attr:     attrs,
	}
}

// WithText adds text to an element node and returns it.
func WithText(n *html.Node, text string) *html.Node {
	if n.Type != html.ElementNode {
		panic("not an element node")
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	return n
}

func isTag(n *html.Node, a atom.Atom) bool {
	return n.Type == html.ElementNode && (n.DataAtom == a || (n.DataAtom == 0 && strings.EqualFold(n.Data, a.String())))
}

// Find returns first descendant element of n with requested tag in document
// order.
func Find(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isTag(c, a) {
			return c
		}
		if m := Find(c, a); m != nil {
			return m
		}
	}
	return nil
}

// FindAll returns all descendant elements of n with requested tag in
// document order.
func FindAll(n *html.Node, a atom.Atom) []*html.Node {
	return collect(n, func(c *html.Node) bool { return isTag(c, a) })
}

// FirstChildOfTag returns first direct child element of n with requested tag.
func FirstChildOfTag(n *html.Node, a atom.Atom) *html.Node {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if isTag(c, a) {
			return c
		}
	}
	return nil
}

// FindByClass returns all descendant elements of n with requested tag
// carrying class in document order.
func FindByClass(n *html.Node, a atom.Atom, class string) []*html.Node {
	return collect(n, func(c *html.Node) bool {
		if !isTag(c, a) {
			return false
		}
		v, _ := Attr(c, "class")
		return includes(v, class)
	})
}

// FindByID returns first descendant element of n with requested id.
func FindByID(n *html.Node, id string) *html.Node {
	ns := collect(n, func(c *html.Node) bool {
		v, ok := Attr(c, "id")
		return ok && v == id
	})
	if len(ns) == 0 {
		return nil
	}
	return ns[0]
}

func collect(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var (
		res   []*html.Node
		stack = []*html.Node{n}
		cur   *html.Node
	)
	for len(stack) != 0 {
		stack, cur = stack[:len(stack)-1], stack[len(stack)-1]
		if cur != n && cur.Type == html.ElementNode && match(cur) {
			res = append(res, cur)
		}
		for c := cur.LastChild; c != nil; c = c.PrevSibling {
			stack = append(stack, c)
		}
	}
	return res
}

// Attr returns value of attribute on element node, ignoring namespaces.
func Attr(n *html.Node, key string) (string, bool) {
	if n.Type != html.ElementNode {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr replaces or adds attribute.
func SetAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// Remove detaches n from its parent.
func Remove(n *html.Node) {
	if n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// RemoveAll detaches all descendant elements of n with requested tag,
// returning number of removed elements.
func RemoveAll(n *html.Node, a atom.Atom) int {
	found := FindAll(n, a)
	for _, c := range found {
		Remove(c)
	}
	return len(found)
}

// Prepend inserts child as first child of parent.
func Prepend(parent, child *html.Node) {
	parent.InsertBefore(child, parent.FirstChild)
}

// MoveChildren moves all children of src to the end of dst preserving order.
func MoveChildren(dst, src *html.Node) {
	for c := src.FirstChild; c != nil; c = src.FirstChild {
		src.RemoveChild(c)
		dst.AppendChild(c)
	}
}

// Text returns concatenated text content of n.
func Text(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// OuterHTML renders n with all its children.
func OuterHTML(n *html.Node) (string, error) {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return sb.String(), nil
}

// IsBlank reports whether s consists of whitespace only.
func IsBlank(s string) bool {
	for _, c := range s {
		if !unicode.IsSpace(c) {
			return false
		}
	}
	return true
}

// includes returns true if the token is in the whitespace-delimited string.
func includes(s, token string) bool {
	for _, f := range strings.Fields(s) {
		if f == token {
			return true
		}
	}
	return false
}
