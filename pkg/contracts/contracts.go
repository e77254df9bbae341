package contracts

import (
	"context"

	"github.com/oarkflow/hl7/pkg/utils"
)

type SourceOption struct {
	Limit int
}

// Option configures a single Extract call.
type Option func(*SourceOption)

// WithLimit stops extraction after n messages.
func WithLimit(n int) Option {
	return func(o *SourceOption) {
		o.Limit = n
	}
}

func ApplyOptions(opts ...Option) SourceOption {
	var o SourceOption
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Source emits one record per raw HL7 message.
type Source interface {
	Setup(ctx context.Context) error
	Extract(ctx context.Context, opts ...Option) (<-chan utils.Record, error)
	Close() error
}

// ErrorReporter is implemented by sources whose record stream can stop early
// on a read failure. Err is valid once the Extract channel is closed.
type ErrorReporter interface {
	Err() error
}

// Acknowledger is implemented by sources that must settle every record they
// emit: Ack once it is loaded or deliberately dropped, Nack otherwise.
type Acknowledger interface {
	Ack(rec utils.Record) error
	Nack(rec utils.Record, requeue bool) error
}

type Loader interface {
	Setup(ctx context.Context) error
	StoreBatch(ctx context.Context, batch []utils.Record) error
	StoreSingle(ctx context.Context, rec utils.Record) error
	Close() error
}

// Transformer enriches a record. Returning a nil record without an error
// drops it from the pipeline.
type Transformer interface {
	Name() string
	Transform(ctx context.Context, rec utils.Record) (utils.Record, error)
}
