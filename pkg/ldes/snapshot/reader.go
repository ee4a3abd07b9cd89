// Package snapshot implements a file-backed stream reader. A snapshot file
// holds the pages of a stream in order:
//
//	{"pages": [{"url": "https://example.org/objects?page=1", "members": [{...}, {...}]}]}
//
// The reader resumes at ReaderOptions.StartPage, skips excluded pages and,
// in polling mode, re-reads the file to pick up appended pages and members.
package snapshot

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
	"github.com/ajitpratap0/ldes-replicator/pkg/ldes"
	"github.com/ajitpratap0/ldes-replicator/pkg/logger"
)

// Page is one page of a snapshot file
type Page struct {
	URL     string              `json:"url"`
	Members []gojson.RawMessage `json:"members"`
}

// Document is the content of a snapshot file
type Document struct {
	Pages []Page `json:"pages"`
}

// Reader reads a stream from a snapshot file
type Reader struct {
	path   string
	opts   ldes.ReaderOptions
	logger *zap.Logger

	// members already emitted per page, survives polls
	emitted map[string]int

	mu     sync.Mutex
	cancel context.CancelFunc
	closed bool
}

// NewReaderFactory returns a ReaderFactory logging to l
func NewReaderFactory(l *zap.Logger) ldes.ReaderFactory {
	return func(ctx context.Context, opts ldes.ReaderOptions) (ldes.Reader, error) {
		return Open(ctx, opts, l)
	}
}

// Open creates a reader for the snapshot file named by opts.URL, which may
// be a plain path or a file:// URL.
func Open(_ context.Context, opts ldes.ReaderOptions, l *zap.Logger) (*Reader, error) {
	path := strings.TrimPrefix(opts.URL, "file://")
	if path == "" {
		return nil, errors.New(errors.ErrorTypeConfig, "snapshot reader requires a file path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeReader, "snapshot file not accessible").
			WithDetail("path", path)
	}

	return &Reader{
		path:    path,
		opts:    opts,
		logger:  logger.OrDefault(l).With(zap.String("component", "snapshot_reader"), zap.String("path", path)),
		emitted: make(map[string]int),
	}, nil
}

// Stream implements ldes.Reader
func (r *Reader) Stream(ctx context.Context) *ldes.EventStream {
	ctx, cancel := context.WithCancel(ctx)

	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	events := make(chan ldes.Event)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer cancel()

		if err := r.run(ctx, events); err != nil && ctx.Err() == nil {
			errs <- err
		}
	}()

	return &ldes.EventStream{Events: events, Errors: errs}
}

// Close stops an active stream
func (r *Reader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if r.cancel != nil {
		r.cancel()
	}
	return nil
}

func (r *Reader) run(ctx context.Context, events chan<- ldes.Event) error {
	exclude := make(map[string]bool, len(r.opts.ExcludePages))
	for _, p := range r.opts.ExcludePages {
		exclude[p] = true
	}

	start := r.opts.StartPage
	started := start == "" || start == r.opts.URL

	for {
		doc, err := r.load()
		if err != nil {
			return err
		}

		for _, page := range doc.Pages {
			if !started {
				if page.URL != start {
					continue
				}
				started = true
			}

			sent, seen := r.emitted[page.URL]
			if !seen && exclude[page.URL] && page.URL != start {
				r.emitted[page.URL] = len(page.Members)
				continue
			}
			if seen && sent >= len(page.Members) {
				continue
			}

			if err := send(ctx, events, ldes.Event{Kind: ldes.EventPage, Page: page.URL}); err != nil {
				return err
			}
			for i := sent; i < len(page.Members); i++ {
				member := ldes.Member(page.Members[i])
				if err := send(ctx, events, ldes.Event{Kind: ldes.EventMember, Page: page.URL, Member: member}); err != nil {
					return err
				}
				r.emitted[page.URL] = i + 1
			}
			if !seen && len(page.Members) == 0 {
				r.emitted[page.URL] = 0
			}
		}

		if !started && r.opts.PollingInterval <= 0 {
			return errors.New(errors.ErrorTypeReader, "start page not found in snapshot").
				WithDetail("page", start)
		}

		if r.opts.PollingInterval <= 0 {
			return nil
		}

		r.logger.Debug("snapshot exhausted, polling", zap.Duration("interval", r.opts.PollingInterval))
		timer := time.NewTimer(r.opts.PollingInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (r *Reader) load() (*Document, error) {
	data, err := os.ReadFile(r.path) //nolint:gosec // G304: path comes from stream configuration
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeReader, "failed to read snapshot").WithDetail("path", r.path)
	}

	var doc Document
	if err := gojson.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeReader, "malformed snapshot").WithDetail("path", r.path)
	}
	return &doc, nil
}

func send(ctx context.Context, events chan<- ldes.Event, ev ldes.Event) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
