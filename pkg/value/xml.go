package value

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrMalformedXML = errors.New("malformed xml")

type Attr struct {
	Name  string
	Value string
}

// XMLNode is an element, or a text node when Name is empty.
type XMLNode struct {
	Name     string
	Attrs    []Attr
	Children []*XMLNode
	Text     string
}

// XMLDocument wraps a parsed tree. Legacy selects the XMLDocument marker of
// the current format over its E4X XML marker.
type XMLDocument struct {
	Root   *XMLNode
	Legacy bool
}

func qualifiedName(name xml.Name) string {
	if name.Space == "" {
		return name.Local
	}
	return name.Space + ":" + name.Local
}

// ParseXML builds a document from source. Whitespace-only text, comments
// and processing instructions are dropped, an empty source yields a nil
// root.
func ParseXML(source string, legacy bool) (*XMLDocument, error) {
	doc := &XMLDocument{Legacy: legacy}
	decoder := xml.NewDecoder(strings.NewReader(source))

	var stack []*XMLNode
	for {
		token, err := decoder.RawToken()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedXML, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			node := &XMLNode{Name: qualifiedName(t.Name)}
			for _, attr := range t.Attr {
				node.Attrs = append(node.Attrs, Attr{Name: qualifiedName(attr.Name), Value: attr.Value})
			}

			switch {
			case len(stack) > 0:
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			case doc.Root == nil:
				doc.Root = node
			default:
				return nil, fmt.Errorf("%w: second root element <%s>", ErrMalformedXML, node.Name)
			}
			stack = append(stack, node)
		case xml.EndElement:
			name := qualifiedName(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].Name != name {
				return nil, fmt.Errorf("%w: unexpected </%s>", ErrMalformedXML, name)
			}
			stack = stack[:len(stack)-1]
		case xml.CharData:
			text := strings.TrimSpace(string(t))
			if text == "" || len(stack) == 0 {
				continue
			}
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, &XMLNode{Text: text})
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: unclosed <%s>", ErrMalformedXML, stack[len(stack)-1].Name)
	}
	return doc, nil
}

func (n *XMLNode) write(builder *strings.Builder) {
	if n.Name == "" {
		_ = xml.EscapeText(builder, []byte(n.Text))
		return
	}

	builder.WriteByte('<')
	builder.WriteString(n.Name)
	for _, attr := range n.Attrs {
		builder.WriteByte(' ')
		builder.WriteString(attr.Name)
		builder.WriteString(`="`)
		_ = xml.EscapeText(builder, []byte(attr.Value))
		builder.WriteByte('"')
	}

	if len(n.Children) == 0 {
		builder.WriteString("/>")
		return
	}

	builder.WriteByte('>')
	for _, child := range n.Children {
		child.write(builder)
	}
	builder.WriteString("</")
	builder.WriteString(n.Name)
	builder.WriteByte('>')
}

func (n *XMLNode) String() string {
	var builder strings.Builder
	n.write(&builder)
	return builder.String()
}

func (d *XMLDocument) String() string {
	if d.Root == nil {
		return ""
	}
	return d.Root.String()
}
