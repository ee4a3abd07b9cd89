// Package errors provides examples of structured error handling.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/ldes-replicator/pkg/errors"
)

// Example demonstrates basic error creation with details.
func Example() {
	err := errors.New(errors.ErrorTypeConfig, "version identifier missing from shape").
		WithDetail("connector", "graph").
		WithDetail("identifier", "http://purl.org/dc/terms/isVersionOf")

	fmt.Println(err.Error())

	// Output:
	// config: version identifier missing from shape
}

// ExampleWrap shows how to wrap a transport error with reader context.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeReader, "failed to decode page").
		WithDetail("page", "https://example.org/stream?page=2")

	if errors.IsType(err, errors.ErrorTypeReader) {
		fmt.Println("reader error")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// reader error
	// caused by unexpected EOF
}

// ExampleIsRetryable shows which errors the retry policy keeps retrying.
func ExampleIsRetryable() {
	timeout := errors.New(errors.ErrorTypeTimeout, "sparql endpoint timed out")
	badQuery := errors.New(errors.ErrorTypeQuery, "malformed update")

	fmt.Println(errors.IsRetryable(timeout))
	fmt.Println(errors.IsRetryable(badQuery))

	// Output:
	// true
	// false
}

// Example_errorChain shows how context accumulates through the layers.
func Example_errorChain() {
	err := errors.New(errors.ErrorTypeConnection, "connection refused")
	err = errors.Wrap(err, errors.ErrorTypeQuery, "flush failed")
	err = errors.Wrap(err, errors.ErrorTypeInternal, "connector graph")

	fmt.Println(err)

	// Output:
	// internal: connector graph: query: flush failed: connection: connection refused
}

// ExampleIsType demonstrates that IsType inspects the outermost structured error.
func ExampleIsType() {
	connErr := errors.New(errors.ErrorTypeConnection, "connection failed")
	wrapped := errors.Wrap(connErr, errors.ErrorTypeState, "checkpoint failed")

	fmt.Printf("state: %v\n", errors.IsType(wrapped, errors.ErrorTypeState))
	fmt.Printf("connection: %v\n", errors.IsType(wrapped, errors.ErrorTypeConnection))

	// Output:
	// state: true
	// connection: false
}
