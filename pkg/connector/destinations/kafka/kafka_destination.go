// Package kafka publishes stream members to a Kafka topic, keyed by the
// entity they are a version of so that all versions of one entity land on
// the same partition in order.
package kafka

import (
	"context"
	"crypto/tls"
	"strings"
	"sync"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/rdf"
)

// Setting defaults
const (
	DefaultBrokers  = "localhost:9092"
	DefaultClientID = "ldes-replicator"
)

// Message headers
const (
	HeaderStream      = "ldes-stream"
	HeaderVersion     = "ldes-version"
	HeaderContentType = "content-type"
	contentTypeJSONLD = "application/ld+json"
)

type producerFunc func(brokers []string, cfg *sarama.Config) (sarama.SyncProducer, error)

// Connector sends every member synchronously, so a successful WriteVersion
// means the broker acknowledged the message.
type Connector struct {
	*base.BaseConnector
	brokers    []string
	topic      string
	identifier string
	saramaCfg  *sarama.Config

	newProducer producerFunc
	mu          sync.RWMutex
	producer    sarama.SyncProducer
}

// NewConnector creates a kafka connector
func NewConnector(params core.Params) (core.Connector, error) {
	b := base.NewBaseConnector(params, core.TypeKafka)
	cfg := b.Config()

	brokers := cfg.ListSetting("brokers")
	if len(brokers) == 0 {
		brokers = []string{DefaultBrokers}
	}

	saramaCfg, err := buildSaramaConfig(b)
	if err != nil {
		return nil, err
	}

	c := &Connector{
		BaseConnector: b,
		brokers:       brokers,
		topic:         cfg.Setting("topic", params.Stream),
		identifier:    rdf.DCTermsIsVersionOf,
		saramaCfg:     saramaCfg,
		newProducer:   sarama.NewSyncProducer,
	}
	if v := cfg.Versions; v != nil && v.Identifier != "" {
		c.identifier = v.Identifier
	}
	return c, nil
}

func buildSaramaConfig(b *base.BaseConnector) (*sarama.Config, error) {
	cfg := b.Config()
	sc := sarama.NewConfig()
	sc.ClientID = cfg.Setting("client_id", DefaultClientID)
	sc.Net.DialTimeout = cfg.Timeouts.Connection
	sc.Net.ReadTimeout = cfg.Timeouts.Request
	sc.Net.WriteTimeout = cfg.Timeouts.Request
	sc.Producer.Return.Successes = true
	sc.Producer.Return.Errors = true
	// retries happen in the connector's retry policy
	sc.Producer.Retry.Max = 0

	switch cfg.Setting("acks", "all") {
	case "all", "-1":
		sc.Producer.RequiredAcks = sarama.WaitForAll
	case "1":
		sc.Producer.RequiredAcks = sarama.WaitForLocal
	case "0":
		sc.Producer.RequiredAcks = sarama.NoResponse
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "invalid acks setting").WithDetail("acks", cfg.Settings["acks"])
	}

	switch cfg.Setting("compression", "none") {
	case "none":
		sc.Producer.Compression = sarama.CompressionNone
	case "gzip":
		sc.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		sc.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		sc.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		sc.Producer.Compression = sarama.CompressionZSTD
		sc.Version = sarama.V2_1_0_0
	default:
		return nil, errors.New(errors.ErrorTypeConfig, "invalid compression setting").WithDetail("compression", cfg.Settings["compression"])
	}

	if cfg.Setting("tls", "false") == "true" {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if mechanism := cfg.Setting("sasl_mechanism", ""); mechanism != "" {
		sc.Net.SASL.Enable = true
		sc.Net.SASL.User = cfg.Setting("sasl_username", "")
		sc.Net.SASL.Password = cfg.Setting("sasl_password", "")
		switch strings.ToUpper(mechanism) {
		case "PLAIN":
			sc.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		default:
			return nil, errors.New(errors.ErrorTypeConfig, "unsupported sasl mechanism").WithDetail("sasl_mechanism", mechanism)
		}
	}

	if err := sc.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "invalid kafka settings").WithDetail("connector", b.Name())
	}
	return sc, nil
}

// Provision implements core.Connector
func (c *Connector) Provision(ctx context.Context) error {
	var producer sarama.SyncProducer
	err := c.RetryPolicy().ExecuteRetryable(ctx, func() error {
		p, err := c.newProducer(c.brokers, c.saramaCfg)
		if err != nil {
			return classify(err, "failed to create kafka producer")
		}
		producer = p
		return nil
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to provision kafka connector").
			WithDetail("connector", c.Name()).
			WithDetail("brokers", strings.Join(c.brokers, ","))
	}

	c.mu.Lock()
	c.producer = producer
	c.mu.Unlock()

	c.Logger().Info("kafka connector provisioned",
		zap.Strings("brokers", c.brokers),
		zap.String("topic", c.topic))
	return nil
}

// WriteVersion implements core.Connector
func (c *Connector) WriteVersion(ctx context.Context, member ldes.Member) error {
	msg, err := c.message(member)
	if err != nil {
		return err
	}

	c.mu.RLock()
	producer := c.producer
	c.mu.RUnlock()
	if producer == nil {
		return errors.New(errors.ErrorTypeInternal, "connector is not provisioned").WithDetail("connector", c.Name())
	}

	return c.RetryPolicy().ExecuteRetryable(ctx, func() error {
		partition, offset, err := producer.SendMessage(msg)
		if err != nil {
			return classify(err, "failed to send member")
		}
		c.Logger().Debug("produced member",
			zap.String("topic", msg.Topic),
			zap.Int32("partition", partition),
			zap.Int64("offset", offset))
		return nil
	})
}

func (c *Connector) message(member ldes.Member) (*sarama.ProducerMessage, error) {
	parsed, err := rdf.Parse(member)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to parse member").WithDetail("connector", c.Name())
	}

	key := parsed.Root.Value
	if v, ok := parsed.Object(c.identifier); ok && v.Kind == rdf.KindIRI {
		key = v.Value
	}

	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderStream), Value: []byte(c.Stream())},
		{Key: []byte(HeaderContentType), Value: []byte(contentTypeJSONLD)},
	}
	if parsed.Root.Kind == rdf.KindIRI {
		headers = append(headers, sarama.RecordHeader{Key: []byte(HeaderVersion), Value: []byte(parsed.Root.Value)})
	}

	return &sarama.ProducerMessage{
		Topic:   c.topic,
		Key:     sarama.StringEncoder(key),
		Value:   sarama.ByteEncoder(member),
		Headers: headers,
	}, nil
}

// Stop implements core.Connector
func (c *Connector) Stop(_ context.Context) error {
	c.mu.Lock()
	producer := c.producer
	c.producer = nil
	c.mu.Unlock()

	if producer == nil {
		return nil
	}
	if err := producer.Close(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConnection, "failed to close kafka producer").WithDetail("connector", c.Name())
	}
	return nil
}

func classify(err error, msg string) error {
	var kerr sarama.KError
	switch {
	case errors.Is(err, sarama.ErrOutOfBrokers),
		errors.Is(err, sarama.ErrNotConnected),
		errors.Is(err, sarama.ErrClosedClient),
		errors.Is(err, sarama.ErrLeaderNotAvailable),
		errors.Is(err, sarama.ErrNotLeaderForPartition):
		return errors.Wrap(err, errors.ErrorTypeConnection, msg)
	case errors.Is(err, sarama.ErrRequestTimedOut):
		return errors.Wrap(err, errors.ErrorTypeTimeout, msg)
	case errors.As(err, &kerr):
		return errors.Wrap(err, errors.ErrorTypeQuery, msg).WithDetail("kafka_error", kerr.Error())
	default:
		return errors.Wrap(err, errors.ErrorTypeConnection, msg)
	}
}
