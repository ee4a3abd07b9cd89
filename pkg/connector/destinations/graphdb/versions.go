package graphdb

import (
	"context"
	"fmt"

	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
	"github.com/ajitpratap0/ldes-replicator/pkg/sparql"
)

// sparqlClient is the part of sparql.Client the connectors use
type sparqlClient interface {
	Update(ctx context.Context, update string) error
	Query(ctx context.Context, query string) (*sparql.Results, error)
	Ask(ctx context.Context, query string) (bool, error)
	Close() error
}

// versionStore finds and deletes entity versions kept in one named graph.
// A version is any node carrying the identifier property; the sorter
// property orders the versions of an entity.
type versionStore struct {
	client     sparqlClient
	graph      string
	identifier string
	sorter     string
}

// OverLimit implements base.VersionStore
func (v *versionStore) OverLimit(ctx context.Context, limit int) ([]string, error) {
	query := fmt.Sprintf(`SELECT ?entity WHERE {
  GRAPH %s { ?version %s ?entity }
}
GROUP BY ?entity
HAVING (COUNT(DISTINCT ?version) > %d)`,
		rdf.IRI(v.graph), rdf.IRI(v.identifier), limit)

	results, err := v.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return results.Column("entity"), nil
}

// Versions implements base.VersionStore. A version with several sorter
// values is ordered by its smallest one and listed once.
func (v *versionStore) Versions(ctx context.Context, entity string) ([]string, error) {
	query := fmt.Sprintf(`SELECT ?version (MIN(?sort) AS ?key) WHERE {
  GRAPH %s {
    ?version %s %s .
    OPTIONAL { ?version %s ?sort }
  }
}
GROUP BY ?version
ORDER BY ASC(?key)`,
		rdf.IRI(v.graph), rdf.IRI(v.identifier), rdf.IRI(entity), rdf.IRI(v.sorter))

	results, err := v.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	return results.Column("version"), nil
}

// DeleteVersions implements base.VersionStore
func (v *versionStore) DeleteVersions(ctx context.Context, _ string, versions []string) error {
	if len(versions) == 0 {
		return nil
	}
	update := fmt.Sprintf("WITH %s DELETE { ?s ?p ?o } WHERE { ?s ?p ?o FILTER(?s IN (%s)) }",
		rdf.IRI(v.graph), iriList(versions))
	return v.client.Update(ctx, update)
}
