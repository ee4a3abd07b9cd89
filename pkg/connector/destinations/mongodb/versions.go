package mongodb

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

// versionOrder sorts the versions of an entity oldest first. Dates and
// numbers compare by value; the raw sort_key only breaks ties and orders
// values of any other type.
var versionOrder = bson.D{
	{Key: "generated_at", Value: 1},
	{Key: "sort_number", Value: 1},
	{Key: "sort_key", Value: 1},
}

// xsd:dateTime and xsd:date forms; values without an offset are UTC
var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02Z07:00",
	"2006-01-02",
}

// setSortKey stores the sorter value and its typed form
func (d *Document) setSortKey(v rdf.Term) {
	d.SortKey = v.Value
	value := strings.TrimSpace(v.Value)

	switch v.Datatype {
	case rdf.XSDInteger, rdf.XSDDecimal, rdf.XSDDouble:
	default:
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, value); err == nil {
				ts = ts.UTC()
				d.GeneratedAt = &ts
				return
			}
		}
	}
	if f, err := strconv.ParseFloat(value, 64); err == nil && !math.IsNaN(f) {
		d.SortNumber = &f
	}
}

// versionStore implements base.VersionStore on the member documents of one
// stream
type versionStore struct {
	coll   collection
	stream string
}

type idRow struct {
	ID string `bson:"_id"`
}

// OverLimit implements base.VersionStore
func (v *versionStore) OverLimit(ctx context.Context, limit int) ([]string, error) {
	pipeline := bson.A{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "stream", Value: v.stream},
			{Key: "version_of", Value: bson.D{{Key: "$exists", Value: true}}},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$version_of"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$match", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: limit}}}}}},
	}

	cursor, err := v.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classify(err, "failed to aggregate versions")
	}
	return ids(ctx, cursor)
}

// Versions implements base.VersionStore
func (v *versionStore) Versions(ctx context.Context, entity string) ([]string, error) {
	opts := options.Find().
		SetSort(versionOrder).
		SetProjection(bson.D{{Key: "_id", Value: 1}})

	cursor, err := v.coll.Find(ctx, bson.D{
		{Key: "stream", Value: v.stream},
		{Key: "version_of", Value: entity},
	}, opts)
	if err != nil {
		return nil, classify(err, "failed to list versions")
	}
	return ids(ctx, cursor)
}

// DeleteVersions implements base.VersionStore
func (v *versionStore) DeleteVersions(ctx context.Context, _ string, versions []string) error {
	if len(versions) == 0 {
		return nil
	}
	_, err := v.coll.DeleteMany(ctx, bson.D{{Key: "_id", Value: bson.D{{Key: "$in", Value: versions}}}})
	return classify(err, "failed to delete versions")
}

type cursor interface {
	All(ctx context.Context, results interface{}) error
}

func ids(ctx context.Context, c cursor) ([]string, error) {
	var rows []idRow
	if err := c.All(ctx, &rows); err != nil {
		return nil, classify(err, "failed to decode cursor")
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out, nil
}
