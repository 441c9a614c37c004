package segd

import (
	"encoding/binary"

	"example.com/segdgate/internal/common"
)

type options struct {
	slack      int
	strictTail bool
	order      binary.ByteOrder
	noSamples  bool
	metrics    *common.Metrics
}

// Option tunes a decode.
type Option func(*options)

// WithSlack tolerates up to n unaccounted bytes after the last declared block.
func WithSlack(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.slack = n
		}
	}
}

// WithStrictTail turns a truncated trailing trace into a fatal error.
func WithStrictTail() Option {
	return func(o *options) { o.strictTail = true }
}

// WithByteOrder overrides the sample byte order. Header fields stay big endian.
func WithByteOrder(order binary.ByteOrder) Option {
	return func(o *options) { o.order = order }
}

// WithoutSamples walks trace headers but skips sample conversion.
func WithoutSamples() Option {
	return func(o *options) { o.noSamples = true }
}

func WithMetrics(m *common.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
