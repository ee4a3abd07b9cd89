package graphdb

import (
	"strings"

	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

// operationSeparator joins the operations of one update request
const operationSeparator = " ;\n"

func insertData(graph string, triples []rdf.Triple) string {
	return "INSERT DATA { GRAPH " + rdf.IRI(graph).String() + " {\n" + rdf.JoinTriples(triples) + "\n} }"
}

// deleteAbout removes every statement whose subject is node. The where
// clause makes it a no-op for unknown nodes.
func deleteAbout(graph string, node rdf.Term) string {
	pattern := node.String() + " ?p ?o"
	return "WITH " + rdf.IRI(graph).String() + " DELETE { " + pattern + " } WHERE { " + pattern + " }"
}

func joinOperations(ops []string) string {
	return strings.Join(ops, operationSeparator)
}

// materialize rewrites the statements about the version node onto the
// entity, drops the statement linking the two and records the version
// with dcterms:hasVersion. Statements about nested nodes are kept as is.
func materialize(doc *rdf.Document, entity rdf.Term, identifier string) []rdf.Triple {
	out := make([]rdf.Triple, 0, len(doc.Triples)+1)
	for _, t := range doc.Triples {
		if t.Subject != doc.Root {
			out = append(out, t)
			continue
		}
		if t.Predicate.Value == identifier {
			continue
		}
		out = append(out, rdf.Triple{Subject: entity, Predicate: t.Predicate, Object: t.Object})
	}
	return append(out, rdf.Triple{Subject: entity, Predicate: rdf.IRI(rdf.DCTermsHasVersion), Object: doc.Root})
}

func iriList(values []string) string {
	terms := make([]string, len(values))
	for i, v := range values {
		terms[i] = rdf.IRI(v).String()
	}
	return strings.Join(terms, ", ")
}
