// Package rdf turns JSON-LD stream members into RDF triples and renders
// them in the N-Triples/SPARQL term syntax used by the SPARQL connectors.
package rdf

import (
	"strings"
)

// Well-known vocabulary
const (
	XSD         = "http://www.w3.org/2001/XMLSchema#"
	XSDString   = XSD + "string"
	XSDBoolean  = XSD + "boolean"
	XSDInteger  = XSD + "integer"
	XSDDouble   = XSD + "double"
	XSDDecimal  = XSD + "decimal"
	XSDDate     = XSD + "date"
	XSDDateTime = XSD + "dateTime"

	RDFType    = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	RDFLangStr = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"

	DCTermsHasVersion  = "http://purl.org/dc/terms/hasVersion"
	DCTermsIsVersionOf = "http://purl.org/dc/terms/isVersionOf"
)

// TermKind classifies a term
type TermKind int

const (
	KindIRI TermKind = iota
	KindBlankNode
	KindLiteral
	KindVariable
)

// Term is an RDF term or a SPARQL variable
type Term struct {
	Kind     TermKind
	Value    string
	Datatype string
	Language string
}

// IRI returns a named node
func IRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

// Blank returns a blank node with the given label
func Blank(label string) Term { return Term{Kind: KindBlankNode, Value: label} }

// Literal returns a typed literal. An empty datatype means xsd:string.
func Literal(v, datatype string) Term {
	return Term{Kind: KindLiteral, Value: v, Datatype: datatype}
}

// LangLiteral returns a language-tagged string
func LangLiteral(v, lang string) Term {
	return Term{Kind: KindLiteral, Value: v, Datatype: RDFLangStr, Language: lang}
}

// Var returns a SPARQL variable
func Var(name string) Term { return Term{Kind: KindVariable, Value: name} }

// IsZero reports whether t is the zero Term
func (t Term) IsZero() bool { return t == Term{} }

// String renders the term in SPARQL syntax
func (t Term) String() string {
	switch t.Kind {
	case KindIRI:
		return "<" + t.Value + ">"
	case KindBlankNode:
		return "_:" + t.Value
	case KindVariable:
		return "?" + t.Value
	default:
		lit := `"` + escapeLiteral(t.Value) + `"`
		switch {
		case t.Language != "":
			return lit + "@" + t.Language
		case t.Datatype == "" || t.Datatype == XSDString:
			return lit
		default:
			return lit + "^^<" + t.Datatype + ">"
		}
	}
}

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

func escapeLiteral(s string) string {
	return literalEscaper.Replace(s)
}

// Triple is a subject/predicate/object statement
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

// String renders the triple without the terminating dot
func (t Triple) String() string {
	return t.Subject.String() + " " + t.Predicate.String() + " " + t.Object.String()
}

// JoinTriples renders triples as a dot-separated block
func JoinTriples(triples []Triple) string {
	var sb strings.Builder
	for i, t := range triples {
		if i > 0 {
			sb.WriteString(" .\n")
		}
		sb.WriteString(t.String())
	}
	if len(triples) > 0 {
		sb.WriteString(" .")
	}
	return sb.String()
}
