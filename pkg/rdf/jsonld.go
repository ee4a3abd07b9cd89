package rdf

import (
	"bytes"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
)

// Document is the triple form of one JSON-LD document
type Document struct {
	// Root is the subject of the top-level node. For a stream member it is
	// the version node.
	Root    Term
	Triples []Triple
}

// Objects returns the objects of every triple with the given subject and
// predicate, in document order.
func (d *Document) Objects(subject Term, predicate string) []Term {
	var out []Term
	for _, t := range d.Triples {
		if t.Subject == subject && t.Predicate.Value == predicate {
			out = append(out, t.Object)
		}
	}
	return out
}

// Object returns the first object of the root node for predicate
func (d *Document) Object(predicate string) (Term, bool) {
	objs := d.Objects(d.Root, predicate)
	if len(objs) == 0 {
		return Term{}, false
	}
	return objs[0], true
}

// each document gets its own blank node label space
var documentSeq atomic.Uint64

type termDef struct {
	id       string
	typ      string
	language string
}

type jsonldContext struct {
	vocab string
	terms map[string]termDef
}

func (c *jsonldContext) clone() *jsonldContext {
	n := &jsonldContext{vocab: c.vocab, terms: make(map[string]termDef, len(c.terms))}
	for k, v := range c.terms {
		n.terms[k] = v
	}
	return n
}

type parser struct {
	prefix  string
	blanks  int
	triples []Triple
}

// Parse converts a JSON-LD document to triples. Inline contexts with term
// definitions, prefixes, @vocab and type coercion are honoured; remote
// contexts are not fetched, so properties that only a remote context could
// resolve are skipped. Lists and sets are flattened to repeated values.
func Parse(data []byte) (*Document, error) {
	dec := gojson.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "invalid JSON-LD document")
	}

	p := &parser{prefix: "d" + strconv.FormatUint(documentSeq.Add(1), 36)}
	ctx := &jsonldContext{terms: map[string]termDef{}}

	var root Term
	switch v := raw.(type) {
	case map[string]any:
		if g, ok := v["@graph"]; ok && !hasProperties(v) {
			if c, ok := v["@context"]; ok {
				ctx = ctx.merge(c)
			}
			root = p.graph(g, ctx)
		} else {
			root = p.node(v, ctx)
		}
	case []any:
		root = p.graph(v, ctx)
	default:
		return nil, errors.New(errors.ErrorTypeData, "JSON-LD document must be an object or an array")
	}

	if root.IsZero() {
		return nil, errors.New(errors.ErrorTypeData, "JSON-LD document has no nodes")
	}
	return &Document{Root: root, Triples: p.triples}, nil
}

// hasProperties reports whether a node object carries anything besides
// @context and @graph
func hasProperties(obj map[string]any) bool {
	for k := range obj {
		if k != "@context" && k != "@graph" {
			return true
		}
	}
	return false
}

func (p *parser) graph(v any, ctx *jsonldContext) Term {
	var root Term
	for _, item := range flatten(v) {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		s := p.node(obj, ctx)
		if root.IsZero() {
			root = s
		}
	}
	return root
}

func (p *parser) newBlank() Term {
	b := Blank(p.prefix + "b" + strconv.Itoa(p.blanks))
	p.blanks++
	return b
}

func (p *parser) node(obj map[string]any, ctx *jsonldContext) Term {
	if c, ok := obj["@context"]; ok {
		ctx = ctx.merge(c)
	}

	var subject Term
	if id, ok := obj["@id"].(string); ok && id != "" {
		subject = p.nodeTerm(id, ctx)
	} else {
		subject = p.newBlank()
	}

	for _, t := range flatten(obj["@type"]) {
		s, ok := t.(string)
		if !ok {
			continue
		}
		if iri := ctx.expand(s, true); iri != "" {
			p.emit(subject, IRI(RDFType), IRI(iri))
		}
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		if !strings.HasPrefix(k, "@") {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		predicate := ctx.expand(key, true)
		if predicate == "" || strings.HasPrefix(predicate, "@") {
			continue
		}
		def := ctx.terms[key]
		for _, v := range flatten(obj[key]) {
			if object, ok := p.value(v, def, ctx); ok {
				p.emit(subject, IRI(predicate), object)
			}
		}
	}

	if g, ok := obj["@graph"]; ok {
		p.graph(g, ctx)
	}

	return subject
}

func (p *parser) value(v any, def termDef, ctx *jsonldContext) (Term, bool) {
	switch val := v.(type) {
	case nil:
		return Term{}, false
	case map[string]any:
		if lit, ok := val["@value"]; ok {
			return valueObject(lit, val, ctx)
		}
		return p.node(val, ctx), true
	case string:
		switch def.typ {
		case "@id":
			return p.nodeTerm(val, ctx), true
		case "@vocab":
			return IRI(ctx.expand(val, true)), true
		case "":
			if def.language != "" {
				return LangLiteral(val, def.language), true
			}
			return Literal(val, ""), true
		default:
			return Literal(val, def.typ), true
		}
	case bool:
		return Literal(strconv.FormatBool(val), XSDBoolean), true
	case gojson.Number:
		if def.typ != "" && !strings.HasPrefix(def.typ, "@") {
			return Literal(val.String(), def.typ), true
		}
		return numberLiteral(val.String()), true
	default:
		return Term{}, false
	}
}

func valueObject(lit any, obj map[string]any, ctx *jsonldContext) (Term, bool) {
	var lexical string
	switch l := lit.(type) {
	case string:
		lexical = l
	case bool:
		lexical = strconv.FormatBool(l)
	case gojson.Number:
		if _, typed := obj["@type"]; !typed {
			return numberLiteral(l.String()), true
		}
		lexical = l.String()
	default:
		return Term{}, false
	}

	if lang, ok := obj["@language"].(string); ok && lang != "" {
		return LangLiteral(lexical, lang), true
	}
	if t, ok := obj["@type"].(string); ok {
		return Literal(lexical, ctx.expand(t, true)), true
	}
	if _, ok := lit.(bool); ok {
		return Literal(lexical, XSDBoolean), true
	}
	return Literal(lexical, ""), true
}

func numberLiteral(lexical string) Term {
	if strings.ContainsAny(lexical, ".eE") {
		return Literal(lexical, XSDDouble)
	}
	return Literal(lexical, XSDInteger)
}

func (p *parser) emit(s, pred, o Term) {
	p.triples = append(p.triples, Triple{Subject: s, Predicate: pred, Object: o})
}

// merge returns a new context with the definitions of c applied
func (ctx *jsonldContext) merge(c any) *jsonldContext {
	n := ctx.clone()
	for _, item := range flatten(c) {
		defs, ok := item.(map[string]any)
		if !ok {
			// remote context
			continue
		}
		if vocab, ok := defs["@vocab"].(string); ok {
			n.vocab = vocab
		}
		for k, v := range defs {
			if strings.HasPrefix(k, "@") {
				continue
			}
			switch d := v.(type) {
			case string:
				n.terms[k] = termDef{id: d}
			case map[string]any:
				def := termDef{}
				def.id, _ = d["@id"].(string)
				def.typ, _ = d["@type"].(string)
				def.language, _ = d["@language"].(string)
				n.terms[k] = def
			}
		}
	}

	// resolve term ids and datatypes against the merged context
	for k, def := range n.terms {
		if def.id != "" {
			def.id = n.expandIRI(def.id, 0)
		}
		if def.typ != "" && !strings.HasPrefix(def.typ, "@") {
			def.typ = n.expandIRI(def.typ, 0)
		}
		n.terms[k] = def
	}
	return n
}

// expand resolves a term, compact IRI or absolute IRI. Vocabulary-relative
// resolution falls back to @vocab. Unresolvable keys yield "".
func (ctx *jsonldContext) expand(s string, vocab bool) string {
	if def, ok := ctx.terms[s]; ok && def.id != "" {
		return def.id
	}
	if iri := ctx.expandIRI(s, 0); iri != s {
		return iri
	}
	if isAbsolute(s) {
		return s
	}
	if vocab && ctx.vocab != "" {
		return ctx.vocab + s
	}
	return ""
}

func (ctx *jsonldContext) expandIRI(s string, depth int) string {
	if depth > 8 {
		return s
	}
	if i := strings.Index(s, ":"); i > 0 && !strings.HasPrefix(s[i:], "://") {
		prefix, suffix := s[:i], s[i+1:]
		if def, ok := ctx.terms[prefix]; ok {
			base := def.id
			if base == "" || base == prefix {
				return s
			}
			return ctx.expandIRI(base, depth+1) + suffix
		}
	}
	if def, ok := ctx.terms[s]; ok && def.id != "" && def.id != s {
		return ctx.expandIRI(def.id, depth+1)
	}
	return s
}

// nodeTerm resolves an @id. Explicit blank node labels are scoped to the
// document so two members using the same label never share a node; the
// prefix holds no underscore.
func (p *parser) nodeTerm(id string, ctx *jsonldContext) Term {
	if label, ok := strings.CutPrefix(id, "_:"); ok {
		return Blank(p.prefix + "_" + label)
	}
	return IRI(ctx.expandIRI(id, 0))
}

func isAbsolute(s string) bool {
	i := strings.Index(s, ":")
	if i <= 0 {
		return false
	}
	for _, r := range s[:i] {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.') {
			return false
		}
	}
	return true
}

func flatten(v any) []any {
	switch val := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, flatten(item)...)
		}
		return out
	case map[string]any:
		if list, ok := val["@list"]; ok {
			return flatten(list)
		}
		if set, ok := val["@set"]; ok {
			return flatten(set)
		}
		return []any{val}
	default:
		return []any{val}
	}
}
