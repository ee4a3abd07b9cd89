// Package jsonl appends stream members to a line-delimited JSON file, one
// compacted member per line, optionally compressed.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/compression"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/base"
	"github.com/ajitpratap0/ldes-replicator/pkg/connector/core"
	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
)

// Setting defaults
const (
	DefaultPath       = "{stream}.jsonl"
	DefaultBufferSize = 64 * 1024
	streamPlaceholder = "{stream}"
)

type flushWriter interface {
	Flush() error
}

// Connector queues lines in memory and appends them to the file on every
// flush. A flush ends with the compressed stream and the file buffer
// flushed, so the file holds every member written before it.
type Connector struct {
	*base.BaseConnector
	path       string
	algorithm  compression.Algorithm
	level      compression.Level
	bufferSize int
	fsync      bool

	mu      sync.Mutex
	file    *os.File
	buf     *bufio.Writer
	encoder io.WriteCloser

	flusher *base.Flusher[[]byte]
}

// NewConnector creates a jsonl connector
func NewConnector(params core.Params) (core.Connector, error) {
	b := base.NewBaseConnector(params, core.TypeJSONL)
	cfg := b.Config()

	algorithm, err := compression.ParseAlgorithm(cfg.Setting("compression", ""))
	if err != nil {
		return nil, err
	}
	level, err := compression.ParseLevel(cfg.Setting("compression_level", ""))
	if err != nil {
		return nil, err
	}
	bufferSize, err := cfg.IntSetting("buffer_size", DefaultBufferSize)
	if err != nil {
		return nil, err
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	path := strings.ReplaceAll(cfg.Setting("path", DefaultPath), streamPlaceholder, params.Stream)
	if ext := algorithm.Extension(); ext != "" && !strings.HasSuffix(path, ext) {
		path += ext
	}

	c := &Connector{
		BaseConnector: b,
		path:          path,
		algorithm:     algorithm,
		level:         level,
		bufferSize:    bufferSize,
		fsync:         cfg.Setting("fsync", "false") == "true",
	}
	c.flusher = base.NewFlusher(base.FlusherConfig{
		Name:         b.Name(),
		Interval:     cfg.Performance.FlushInterval,
		MaxBatchSize: cfg.Performance.MaxBatchSize,
		Retry:        b.RetryPolicy(),
	}, c.appendLines, b.Logger())
	return c, nil
}

// Path returns the file the connector appends to
func (c *Connector) Path() string { return c.path }

// Provision implements core.Connector
func (c *Connector) Provision(ctx context.Context) error {
	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to create directory").WithDetail("path", dir)
		}
	}

	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to open file").WithDetail("path", c.path)
	}
	buf := bufio.NewWriterSize(file, c.bufferSize)
	encoder, err := compression.NewWriter(buf, c.algorithm, c.level)
	if err != nil {
		_ = file.Close()
		return err
	}

	c.mu.Lock()
	c.file, c.buf, c.encoder = file, buf, encoder
	c.mu.Unlock()

	c.StartTasks(ctx, c.flusher)
	c.Logger().Info("jsonl connector provisioned",
		zap.String("path", c.path),
		zap.String("compression", string(c.algorithm)))
	return nil
}

// WriteVersion implements core.Connector. The member is compacted to a
// single line and queued.
func (c *Connector) WriteVersion(_ context.Context, member ldes.Member) error {
	var line bytes.Buffer
	if err := gojson.Compact(&line, member); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "member is not valid JSON").WithDetail("connector", c.Name())
	}
	line.WriteByte('\n')
	c.flusher.Enqueue(line.Bytes())
	return nil
}

func (c *Connector) appendLines(_ context.Context, lines [][]byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.encoder == nil {
		return errors.New(errors.ErrorTypeInternal, "connector is not provisioned").WithDetail("connector", c.Name())
	}

	// a batch reaches the encoder in one write so a failure never leaves
	// part of it behind
	if _, err := c.encoder.Write(bytes.Join(lines, nil)); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to write members").
			WithDetail("path", c.path).
			WithDetail("members", len(lines))
	}
	if f, ok := c.encoder.(flushWriter); ok {
		if err := f.Flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush compressed stream").WithDetail("path", c.path)
		}
	}
	if err := c.buf.Flush(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to flush file buffer").WithDetail("path", c.path)
	}
	if c.fsync {
		if err := c.file.Sync(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to sync file").WithDetail("path", c.path)
		}
	}
	return nil
}

// Flush appends the queued members now
func (c *Connector) Flush(ctx context.Context) error {
	return c.flusher.Flush(ctx)
}

// Stop implements core.Connector. Queued members are written and the
// compressed stream is terminated before the file is closed.
func (c *Connector) Stop(ctx context.Context) error {
	err := c.StopTasks(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.file == nil {
		return err
	}
	if cerr := c.encoder.Close(); cerr != nil {
		err = errors.Join(err, errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close compressed stream"))
	}
	if ferr := c.buf.Flush(); ferr != nil {
		err = errors.Join(err, errors.Wrap(ferr, errors.ErrorTypeFile, "failed to flush file buffer"))
	}
	if cerr := c.file.Close(); cerr != nil {
		err = errors.Join(err, errors.Wrap(cerr, errors.ErrorTypeFile, "failed to close file"))
	}
	c.file, c.buf, c.encoder = nil, nil, nil
	return err
}
