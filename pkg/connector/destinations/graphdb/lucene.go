package graphdb

import (
	"context"
	"fmt"
	"strings"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

const (
	luceneNamespace = "http://www.ontotext.com/connectors/lucene#"
	luceneInstance  = "http://www.ontotext.com/connectors/lucene/instance#"
)

type luceneField struct {
	FieldName           string   `json:"fieldName"`
	PropertyChain       []string `json:"propertyChain"`
	Indexed             bool     `json:"indexed"`
	Stored              bool     `json:"stored"`
	Analyzed            bool     `json:"analyzed"`
	Multivalued         bool     `json:"multivalued"`
	IgnoreInvalidValues bool     `json:"ignoreInvalidValues"`
	Facet               bool     `json:"facet"`
}

type luceneDefinition struct {
	Fields              []luceneField `json:"fields"`
	Languages           []string      `json:"languages"`
	Types               []string      `json:"types"`
	Readonly            bool          `json:"readonly"`
	DetectFields        bool          `json:"detectFields"`
	ImportGraph         bool          `json:"importGraph"`
	SkipInitialIndexing bool          `json:"skipInitialIndexing"`
	BoostProperties     []string      `json:"boostProperties"`
	StripMarkup         bool          `json:"stripMarkup"`
}

// luceneIndex manages the GraphDB Lucene connector named "<stream>_index"
type luceneIndex struct {
	name  string
	chain []string
}

func newLuceneIndex(stream string, chain []string) *luceneIndex {
	return &luceneIndex{name: stream + "_index", chain: chain}
}

func (l *luceneIndex) existsQuery() string {
	return fmt.Sprintf("SELECT ?s WHERE { ?s %s %q }", rdf.IRI(luceneNamespace+"listConnectors"), l.name)
}

func (l *luceneIndex) exists(ctx context.Context, client sparqlClient) (bool, error) {
	results, err := client.Query(ctx, l.existsQuery())
	if err != nil {
		return false, err
	}
	return results.Len() > 0, nil
}

func (l *luceneIndex) createUpdate(typeIRI string) (string, error) {
	definition := luceneDefinition{
		Fields: []luceneField{{
			FieldName:     "label",
			PropertyChain: l.chain,
			Indexed:       true,
			Stored:        true,
			Analyzed:      true,
			Multivalued:   true,
			Facet:         true,
		}},
		Languages:       []string{},
		Types:           []string{typeIRI},
		BoostProperties: []string{},
	}
	data, err := gojson.MarshalIndent(definition, "", "  ")
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode lucene definition")
	}

	body := strings.ReplaceAll(string(data), `'''`, `\'\'\'`)
	return fmt.Sprintf("INSERT DATA {\n  %s %s '''%s''' .\n}",
		rdf.IRI(luceneInstance+l.name), rdf.IRI(luceneNamespace+"createConnector"), body), nil
}

func (l *luceneIndex) create(ctx context.Context, client sparqlClient, typeIRI string) error {
	update, err := l.createUpdate(typeIRI)
	if err != nil {
		return err
	}
	return client.Update(ctx, update)
}
