package rdf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
)

const member = `{
  "@context": {
    "dct": "http://purl.org/dc/terms/",
    "xsd": "http://www.w3.org/2001/XMLSchema#",
    "ex": "http://example.org/ns#",
    "isVersionOf": {"@id": "dct:isVersionOf", "@type": "@id"},
    "generatedAtTime": {"@id": "http://www.w3.org/ns/prov#generatedAtTime", "@type": "xsd:dateTime"},
    "name": "ex:name"
  },
  "@id": "http://example.org/v1",
  "@type": "ex:Thing",
  "isVersionOf": "http://example.org/e1",
  "generatedAtTime": "2021-01-01T00:00:00Z",
  "name": {"@value": "Een", "@language": "nl"},
  "ex:count": 3,
  "ex:ratio": 0.5,
  "ex:active": true,
  "ex:part": {"ex:label": "nested"},
  "unmapped": "dropped"
}`

func TestParse_Member(t *testing.T) {
	doc, err := Parse([]byte(member))
	require.NoError(t, err)

	v1 := IRI("http://example.org/v1")
	assert.Equal(t, v1, doc.Root)

	entity, ok := doc.Object(DCTermsIsVersionOf)
	require.True(t, ok)
	assert.Equal(t, IRI("http://example.org/e1"), entity)

	ts, ok := doc.Object("http://www.w3.org/ns/prov#generatedAtTime")
	require.True(t, ok)
	assert.Equal(t, Literal("2021-01-01T00:00:00Z", XSDDateTime), ts)

	typ, ok := doc.Object(RDFType)
	require.True(t, ok)
	assert.Equal(t, IRI("http://example.org/ns#Thing"), typ)

	name, _ := doc.Object("http://example.org/ns#name")
	assert.Equal(t, LangLiteral("Een", "nl"), name)

	count, _ := doc.Object("http://example.org/ns#count")
	assert.Equal(t, Literal("3", XSDInteger), count)

	ratio, _ := doc.Object("http://example.org/ns#ratio")
	assert.Equal(t, Literal("0.5", XSDDouble), ratio)

	active, _ := doc.Object("http://example.org/ns#active")
	assert.Equal(t, Literal("true", XSDBoolean), active)

	part, ok := doc.Object("http://example.org/ns#part")
	require.True(t, ok)
	assert.Equal(t, KindBlankNode, part.Kind)
	assert.Equal(t, []Term{Literal("nested", "")}, doc.Objects(part, "http://example.org/ns#label"))

	// "unmapped" has no definition and there is no @vocab
	assert.Len(t, doc.Triples, 9)
}

func TestParse_BlankLabelsAreUniquePerDocument(t *testing.T) {
	a, err := Parse([]byte(`{"http://example.org/p": {"http://example.org/q": 1}}`))
	require.NoError(t, err)
	b, err := Parse([]byte(`{"http://example.org/p": {"http://example.org/q": 1}}`))
	require.NoError(t, err)

	assert.Equal(t, KindBlankNode, a.Root.Kind)
	assert.NotEqual(t, a.Root, b.Root)

	labelled := []byte(`{
	  "@id": "http://example.org/a",
	  "http://example.org/address": {"@id": "_:addr"},
	  "http://example.org/billing": {"@id": "_:addr", "http://example.org/city": "Ghent"}
	}`)
	c, err := Parse(labelled)
	require.NoError(t, err)
	d, err := Parse(labelled)
	require.NoError(t, err)

	addrC, ok := c.Object("http://example.org/address")
	require.True(t, ok)
	billingC, _ := c.Object("http://example.org/billing")
	assert.Equal(t, KindBlankNode, addrC.Kind)
	assert.Equal(t, addrC, billingC, "one label is one node within a document")
	assert.Equal(t, []Term{Literal("Ghent", "")}, c.Objects(addrC, "http://example.org/city"))

	addrD, _ := d.Object("http://example.org/address")
	assert.NotEqual(t, addrC, addrD)
	assert.NotEqual(t, "addr", addrC.Value)
}

func TestParse_VocabAndGraph(t *testing.T) {
	doc, err := Parse([]byte(`{
	  "@context": {"@vocab": "http://schema.org/"},
	  "@graph": [
	    {"@id": "http://example.org/a", "@type": "Person", "name": "Ann"},
	    {"@id": "http://example.org/b", "name": "Bob"}
	  ]
	}`))
	require.NoError(t, err)

	assert.Equal(t, IRI("http://example.org/a"), doc.Root)
	assert.Equal(t, []Term{IRI("http://schema.org/Person")}, doc.Objects(doc.Root, RDFType))
	assert.Equal(t, []Term{Literal("Bob", "")}, doc.Objects(IRI("http://example.org/b"), "http://schema.org/name"))
}

func TestParse_ArraysAndLists(t *testing.T) {
	doc, err := Parse([]byte(`{
	  "@id": "http://example.org/a",
	  "http://example.org/tag": ["x", "y"],
	  "http://example.org/seq": {"@list": ["1", "2"]},
	  "http://example.org/none": null
	}`))
	require.NoError(t, err)

	assert.Equal(t, []Term{Literal("x", ""), Literal("y", "")}, doc.Objects(doc.Root, "http://example.org/tag"))
	assert.Len(t, doc.Objects(doc.Root, "http://example.org/seq"), 2)
	assert.Empty(t, doc.Objects(doc.Root, "http://example.org/none"))
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"invalid json", `{"@id":`},
		{"scalar document", `"just a string"`},
		{"empty array", `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))
		})
	}
}
