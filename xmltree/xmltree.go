package xmltree

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Node is one element of a parsed XML document.
type Node struct {
	Name     string
	Attr     map[string]string
	Text     string
	Children []*Node
}

// Find returns the first direct child with the given tag name, or nil.
func (n *Node) Find(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Get returns the text content of the first direct child with the given
// tag name, or "" if there is no such child.
func (n *Node) Get(name string) string {
	if c := n.Find(name); c != nil {
		return c.Text
	}
	return ""
}

// All returns every direct child with the given tag name.
func (n *Node) All(name string) []*Node {
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Parse reads an XML document and returns its root element.
func Parse(r io.Reader) (*Node, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("xmltree: empty document")
		}
		if err != nil {
			return nil, fmt.Errorf("xmltree: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return parseElement(dec, start)
		}
	}
}

// Chunk streams the direct children of the document's root element,
// calling fn for each fully-parsed child. The children are discarded as
// they are consumed, so memory use stays bounded by the largest single
// child. Iteration stops early if fn returns an error, which Chunk then
// returns.
func Chunk(r io.Reader, fn func(*Node) error) error {
	dec := xml.NewDecoder(r)

	// Skip to the root element.
	var depth int
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return fmt.Errorf("xmltree: empty document")
		}
		if err != nil {
			return fmt.Errorf("xmltree: %w", err)
		}
		if _, ok := tok.(xml.StartElement); ok {
			depth = 1
			break
		}
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("xmltree: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 1 {
				child, err := parseElement(dec, t)
				if err != nil {
					return err
				}
				if err := fn(child); err != nil {
					return err
				}
				continue
			}
			depth++
		case xml.EndElement:
			depth--
			if depth == 0 {
				return nil
			}
		}
	}
}

// parseElement consumes tokens up to and including start's end element.
func parseElement(dec *xml.Decoder, start xml.StartElement) (*Node, error) {
	n := &Node{Name: start.Name.Local}
	if len(start.Attr) > 0 {
		n.Attr = make(map[string]string, len(start.Attr))
		for _, a := range start.Attr {
			n.Attr[a.Name.Local] = a.Value
		}
	}

	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("xmltree: unterminated <%s>: %w", n.Name, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := parseElement(dec, t)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			n.Text = strings.TrimSpace(text.String())
			return n, nil
		}
	}
}

// WriteIndent writes the subtree rooted at n as indented XML.
func (n *Node) WriteIndent(w io.Writer, indent string) error {
	return n.writeIndent(w, indent, 0)
}

func (n *Node) writeIndent(w io.Writer, indent string, depth int) error {
	pad := strings.Repeat(indent, depth)
	keys := make([]string, 0, len(n.Attr))
	for k := range n.Attr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var attrs strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&attrs, " %s=%q", k, n.Attr[k])
	}
	if len(n.Children) == 0 {
		var err error
		if n.Text == "" {
			_, err = fmt.Fprintf(w, "%s<%s%s/>\n", pad, n.Name, attrs.String())
		} else {
			_, err = fmt.Fprintf(w, "%s<%s%s>%s</%s>\n", pad, n.Name, attrs.String(), escape(n.Text), n.Name)
		}
		return err
	}
	if _, err := fmt.Fprintf(w, "%s<%s%s>\n", pad, n.Name, attrs.String()); err != nil {
		return err
	}
	for _, c := range n.Children {
		if err := c.writeIndent(w, indent, depth+1); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "%s</%s>\n", pad, n.Name)
	return err
}

func escape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}
