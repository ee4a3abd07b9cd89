// Package mongodb stores stream members as documents in a MongoDB
// collection, with optional per-entity version retention.
package mongodb

import (
	"context"
	"net"
	"net/url"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

// Setting defaults
const (
	DefaultHostname = "localhost"
	DefaultPort     = "27017"
	DefaultDatabase = "ldes"
)

// duplicate key error code
const duplicateKeyCode = 11000

// Document is the stored form of a member
type Document struct {
	// ID is the version node IRI, or a generated id for anonymous versions
	ID          string     `bson:"_id"`
	Type        []string   `bson:"type,omitempty"`
	VersionOf   string     `bson:"version_of,omitempty"`
	// SortKey is the sorter value as written; GeneratedAt or SortNumber
	// hold its typed form when it is a date or a number
	SortKey     string     `bson:"sort_key,omitempty"`
	GeneratedAt *time.Time `bson:"generated_at,omitempty"`
	SortNumber  *float64   `bson:"sort_number,omitempty"`
	Stream      string     `bson:"stream"`
	ReceivedAt  time.Time  `bson:"received_at"`
	// Member is the JSON-LD document as received
	Member string `bson:"member"`
}

// collection is the part of *mongo.Collection the connector uses
type collection interface {
	InsertMany(ctx context.Context, documents []interface{}, opts ...*options.InsertManyOptions) (*mongo.InsertManyResult, error)
	Aggregate(ctx context.Context, pipeline interface{}, opts ...*options.AggregateOptions) (*mongo.Cursor, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (*mongo.Cursor, error)
	DeleteMany(ctx context.Context, filter interface{}, opts ...*options.DeleteOptions) (*mongo.DeleteResult, error)
}

type connectFunc func(ctx context.Context) (collection, func(context.Context) error, error)

// Connector queues member documents and inserts them in bulk on every
// flush. Redelivered members are ignored thanks to the version id key.
type Connector struct {
	*base.BaseConnector
	uri            string
	database       string
	collectionName string
	identifier     string
	sorter         string

	connect    connectFunc
	coll       collection
	disconnect func(context.Context) error

	flusher   *base.Flusher[Document]
	retention *base.RetentionEnforcer
	now       func() time.Time
}

// NewConnector creates a mongodb connector
func NewConnector(params core.Params) (core.Connector, error) {
	b := base.NewBaseConnector(params, core.TypeMongoDB)
	cfg := b.Config()

	c := &Connector{
		BaseConnector:  b,
		uri:            connectionString(cfg.Setting("connection_string", ""), cfg.Setting("hostname", DefaultHostname), cfg.Setting("port", DefaultPort), cfg.Setting("username", ""), cfg.Setting("password", "")),
		database:       cfg.Setting("database", DefaultDatabase),
		collectionName: cfg.Setting("collection", params.Stream),
		identifier:     rdf.DCTermsIsVersionOf,
		now:            time.Now,
	}
	if v := cfg.Versions; v != nil {
		if v.Identifier != "" {
			c.identifier = v.Identifier
		}
		c.sorter = v.Sorter
	}
	c.connect = c.dial
	c.flusher = base.NewFlusher(base.FlusherConfig{
		Name:         b.Name(),
		Interval:     cfg.Performance.FlushInterval,
		MaxBatchSize: cfg.Performance.MaxBatchSize,
		Retry:        b.RetryPolicy(),
	}, c.insert, b.Logger())
	return c, nil
}

func connectionString(explicit, host, port, username, password string) string {
	if explicit != "" {
		return explicit
	}
	u := url.URL{Scheme: "mongodb", Host: net.JoinHostPort(host, port)}
	if username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}

func (c *Connector) dial(ctx context.Context) (collection, func(context.Context) error, error) {
	opts := options.Client().
		ApplyURI(c.uri).
		SetConnectTimeout(c.Config().Timeouts.Connection).
		SetTimeout(c.Config().Timeouts.Request)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid mongodb connection settings")
	}

	err = c.RetryPolicy().ExecuteRetryable(ctx, func() error {
		return classify(client.Ping(ctx, nil), "failed to ping mongodb")
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, err
	}

	coll := client.Database(c.database).Collection(c.collectionName)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: append(bson.D{{Key: "stream", Value: 1}, {Key: "version_of", Value: 1}}, versionOrder...),
	})
	if err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, nil, classify(err, "failed to create version index")
	}
	return coll, client.Disconnect, nil
}

// Provision implements core.Connector
func (c *Connector) Provision(ctx context.Context) error {
	if err := c.RequireVersionFields(false); err != nil {
		return err
	}

	coll, disconnect, err := c.connect(ctx)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to provision mongodb connector").
			WithDetail("connector", c.Name()).
			WithDetail("collection", c.collectionName)
	}
	c.coll, c.disconnect = coll, disconnect

	c.StartTasks(ctx, c.flusher)
	if limit := c.Config().RetentionLimit(); limit > 0 {
		store := &versionStore{coll: coll, stream: c.Stream()}
		c.retention = base.NewRetentionEnforcer(c.Name(), store, limit, c.RetryPolicy(), c.Logger())
		c.StartTasks(ctx, c.retention.Task(c.Config().Performance.RetentionInterval))
	}

	c.Logger().Info("mongodb connector provisioned",
		zap.String("database", c.database),
		zap.String("collection", c.collectionName))
	return nil
}

// WriteVersion implements core.Connector. It returns once the document is
// queued.
func (c *Connector) WriteVersion(_ context.Context, member ldes.Member) error {
	doc, err := c.document(member)
	if err != nil {
		return err
	}
	c.flusher.Enqueue(doc)
	return nil
}

func (c *Connector) document(member ldes.Member) (Document, error) {
	parsed, err := rdf.Parse(member)
	if err != nil {
		return Document{}, errors.Wrap(err, errors.ErrorTypeData, "failed to parse member").WithDetail("connector", c.Name())
	}

	doc := Document{
		Stream:     c.Stream(),
		ReceivedAt: c.now().UTC(),
		Member:     string(member),
	}
	if parsed.Root.Kind == rdf.KindIRI {
		doc.ID = parsed.Root.Value
	} else {
		doc.ID = primitive.NewObjectID().Hex()
	}
	for _, t := range parsed.Objects(parsed.Root, rdf.RDFType) {
		doc.Type = append(doc.Type, t.Value)
	}
	if v, ok := parsed.Object(c.identifier); ok {
		doc.VersionOf = v.Value
	}
	if c.sorter != "" {
		if v, ok := parsed.Object(c.sorter); ok {
			doc.setSortKey(v)
		}
	}
	return doc, nil
}

func (c *Connector) insert(ctx context.Context, docs []Document) error {
	if c.coll == nil {
		return errors.New(errors.ErrorTypeInternal, "connector is not provisioned").WithDetail("connector", c.Name())
	}
	batch := make([]interface{}, len(docs))
	for i := range docs {
		batch[i] = docs[i]
	}

	_, err := c.coll.InsertMany(ctx, batch, options.InsertMany().SetOrdered(false))
	if err == nil || onlyDuplicates(err) {
		return nil
	}
	return classify(err, "failed to insert documents")
}

// Flush inserts the queued documents now
func (c *Connector) Flush(ctx context.Context) error {
	return c.flusher.Flush(ctx)
}

// EnforceRetention runs one retention pass now
func (c *Connector) EnforceRetention(ctx context.Context) (base.RetentionResult, error) {
	if c.retention == nil {
		return base.RetentionResult{}, nil
	}
	return c.retention.Enforce(ctx)
}

// Stop implements core.Connector
func (c *Connector) Stop(ctx context.Context) error {
	err := c.StopTasks(ctx)
	if c.disconnect != nil {
		err = errors.Join(err, c.disconnect(ctx))
		c.disconnect = nil
	}
	return err
}

// onlyDuplicates reports whether every write error of a bulk insert is a
// duplicate key, meaning the documents were already stored
func onlyDuplicates(err error) bool {
	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) || bwe.WriteConcernError != nil || len(bwe.WriteErrors) == 0 {
		return false
	}
	for _, we := range bwe.WriteErrors {
		if we.Code != duplicateKeyCode {
			return false
		}
	}
	return true
}

func classify(err error, msg string) error {
	if err == nil {
		return nil
	}
	switch {
	case mongo.IsTimeout(err):
		return errors.Wrap(err, errors.ErrorTypeTimeout, msg)
	case mongo.IsNetworkError(err), errors.Is(err, mongo.ErrClientDisconnected):
		return errors.Wrap(err, errors.ErrorTypeConnection, msg)
	default:
		return errors.Wrap(err, errors.ErrorTypeQuery, msg)
	}
}
