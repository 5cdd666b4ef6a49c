package storage

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Option configures a store.
type Option func(*options)

type options struct {
	logger logrus.FieldLogger
}

// WithLogger sets the logger used for store events.
func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) {
		o.logger = l
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		silent := logrus.New()
		silent.SetOutput(io.Discard)
		o.logger = silent
	}
	o.logger = o.logger.WithField("component", component)
	return o
}
