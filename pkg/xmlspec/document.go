package xmlspec

import (
	"bytes"
	"fmt"
	"iter"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"

	"github.com/iota-uz/loan-sdk/pkg/serrors"
)

var (
	ErrMalformedDocument = serrors.NewError("MALFORMED_DOCUMENT", "malformed XML document", "Errors.MalformedDocument")
	ErrInvalidPath       = serrors.NewError("INVALID_PATH", "invalid path expression", "Errors.InvalidPath")
)

// Document is a parsed XML tree. It is read-only and safe for concurrent use.
type Document struct {
	root *xmlquery.Node
}

// Parse builds a Document. Empty input, a syntax error or a payload without a
// root element yield ErrMalformedDocument.
func Parse(raw []byte) (*Document, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrMalformedDocument.Wrap(nil, "empty payload")
	}
	root, err := xmlquery.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, ErrMalformedDocument.Wrap(err, "parse")
	}
	if rootElement(root) == nil {
		return nil, ErrMalformedDocument.Wrap(nil, "no root element")
	}
	return &Document{root: root}, nil
}

func rootElement(doc *xmlquery.Node) *xmlquery.Node {
	for n := doc.FirstChild; n != nil; n = n.NextSibling {
		if n.Type == xmlquery.ElementNode {
			return n
		}
	}
	return nil
}

// RootName returns the local name of the document element.
func (d *Document) RootName() string {
	if el := rootElement(d.root); el != nil {
		return el.Data
	}
	return ""
}

type compiled struct {
	mu   sync.Mutex
	expr *xpath.Expr
}

// evaluate serialises Expr.Evaluate; node iterators it returns work on a clone.
func (c *compiled) evaluate(node *xmlquery.Node) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expr.Evaluate(xmlquery.CreateXPathNavigator(node))
}

var exprCache sync.Map // cacheKey -> *compiled

func cacheKey(path string, ns Namespaces) string {
	if len(ns) == 0 {
		return path
	}
	prefixes := make([]string, 0, len(ns))
	for p := range ns {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	var b strings.Builder
	for _, p := range prefixes {
		b.WriteString(p)
		b.WriteByte('=')
		b.WriteString(ns[p])
		b.WriteByte(';')
	}
	b.WriteString(path)
	return b.String()
}

func compile(path string, ns Namespaces) (*compiled, error) {
	key := cacheKey(path, ns)
	if c, ok := exprCache.Load(key); ok {
		return c.(*compiled), nil
	}
	expr, err := xpath.CompileWithNS(path, ns)
	if err != nil {
		return nil, ErrInvalidPath.Wrap(err, "%q", path)
	}
	c, _ := exprCache.LoadOrStore(key, &compiled{expr: expr})
	return c.(*compiled), nil
}

// first evaluates c against node and returns the first result as text plus
// the matched node when the result is a node set. An element yields its own
// leading text, not the text of its descendants.
func (c *compiled) first(node *xmlquery.Node) (text string, matched *xmlquery.Node, ok bool) {
	switch v := c.evaluate(node).(type) {
	case *xpath.NodeIterator:
		if !v.MoveNext() {
			return "", nil, false
		}
		cur := v.Current()
		if nav, isNode := cur.(*xmlquery.NodeNavigator); isNode && cur.NodeType() != xpath.AttributeNode {
			matched = nav.Current()
			if matched.Type == xmlquery.ElementNode {
				return leadingText(matched), matched, true
			}
		}
		return cur.Value(), matched, true
	case string:
		return v, nil, true
	case float64:
		if math.IsNaN(v) {
			return "", nil, false
		}
		return strconv.FormatFloat(v, 'f', -1, 64), nil, true
	case bool:
		return strconv.FormatBool(v), nil, true
	default:
		return "", nil, false
	}
}

// leadingText returns the text and CDATA of n up to its first child of any
// other kind.
func leadingText(n *xmlquery.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != xmlquery.TextNode && c.Type != xmlquery.CharDataNode {
			break
		}
		b.WriteString(c.Data)
	}
	return b.String()
}

func attr(node *xmlquery.Node, name string) (string, bool) {
	if node == nil {
		return "", false
	}
	prefix, local := "", name
	if i := strings.IndexByte(name, ':'); i >= 0 {
		prefix, local = name[:i], name[i+1:]
	}
	for _, a := range node.Attr {
		if a.Name.Local == local && (prefix == "" || a.Name.Space == prefix) {
			return a.Value, true
		}
	}
	return "", false
}

type plan struct {
	field FieldSpec
	expr  *compiled
}

func compileFields(fields []FieldSpec, ns Namespaces) ([]plan, error) {
	plans := make([]plan, len(fields))
	for i, f := range fields {
		plans[i].field = f
		if f.Path == "" {
			continue
		}
		c, err := compile(f.Path, ns)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Key, err)
		}
		plans[i].expr = c
	}
	return plans, nil
}

func evalRecord(node *xmlquery.Node, plans []plan) Record {
	rec := make(Record, len(plans))
	for _, p := range plans {
		var (
			text string
			ok   bool
		)
		switch {
		case p.expr == nil:
			text, ok = attr(node, p.field.Attribute)
		case p.field.Attribute != "":
			var matched *xmlquery.Node
			if _, matched, ok = p.expr.first(node); ok {
				text, ok = attr(matched, p.field.Attribute)
			}
		default:
			text, _, ok = p.expr.first(node)
		}
		if !ok {
			continue
		}
		rec[p.field.Key] = p.field.Coerce.Coerce(text)
	}
	return rec
}

// ExtractSingle evaluates every field against the document. Fields whose path
// matches nothing are omitted from the record. The error is reserved for path
// expressions that do not compile.
func ExtractSingle(doc *Document, fields []FieldSpec, ns Namespaces) (Record, error) {
	plans, err := compileFields(fields, ns)
	if err != nil {
		return nil, err
	}
	return evalRecord(doc.root, plans), nil
}

// ExtractMany yields one record per node matched by the section's parent path,
// in document order. The sequence re-evaluates the document on every range.
func ExtractMany(doc *Document, section SectionSpec, ns Namespaces) (iter.Seq[Record], error) {
	parent, err := compile(section.ParentPath, ns)
	if err != nil {
		return nil, fmt.Errorf("section %q: %w", section.Name, err)
	}
	plans, err := compileFields(section.Children, ns)
	if err != nil {
		return nil, fmt.Errorf("section %q: %w", section.Name, err)
	}
	return func(yield func(Record) bool) {
		it, ok := parent.evaluate(doc.root).(*xpath.NodeIterator)
		if !ok {
			return
		}
		for it.MoveNext() {
			nav, isNode := it.Current().(*xmlquery.NodeNavigator)
			if !isNode || nav.NodeType() != xpath.ElementNode {
				continue
			}
			if !yield(evalRecord(nav.Current(), plans)) {
				return
			}
		}
	}, nil
}

// Collect materialises a section.
func Collect(seq iter.Seq[Record]) []Record {
	var out []Record
	for rec := range seq {
		out = append(out, rec)
	}
	return out
}
