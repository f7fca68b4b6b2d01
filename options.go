package savestate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/savestate/savestate/codec"
	"github.com/savestate/savestate/fio"
	"github.com/savestate/savestate/keydir"
)

type options struct {
	codec            codec.Codec
	keydir           keydir.Keydir
	ioManagerCreator func(file string, readonly bool) (fio.IOManager, error)

	verifyChecksums bool
	compactOnClose  bool
	fileLock        bool

	logger     zerolog.Logger
	registerer prometheus.Registerer
}

type Option func(*options)

func defaultOptions() *options {
	return &options{
		codec:            codec.NewCodecImpl(),
		keydir:           keydir.NewOrdered(),
		ioManagerCreator: defaultIOManagerCreator,
		fileLock:         true,
		logger:           zerolog.Nop(),
	}
}

var defaultIOManagerCreator = func(file string, readonly bool) (fio.IOManager, error) {
	return fio.NewFileIO(file, readonly)
}

func WithCodec(codec codec.Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

func WithKeydir(kd keydir.Keydir) Option {
	return func(o *options) {
		o.keydir = kd
	}
}

func WithIOManagerCreator(fn func(file string, readonly bool) (fio.IOManager, error)) Option {
	return func(o *options) {
		o.ioManagerCreator = fn
	}
}

// WithChecksumVerification makes every read fetch the whole record and check
// its checksum instead of trusting the value bytes.
func WithChecksumVerification() Option {
	return func(o *options) {
		o.verifyChecksums = true
	}
}

// WithCompactOnClose rewrites the file down to live records when the store
// is closed.
func WithCompactOnClose() Option {
	return func(o *options) {
		o.compactOnClose = true
	}
}

// WithFileLock toggles the advisory lock taken by writable opens.
func WithFileLock(enabled bool) Option {
	return func(o *options) {
		o.fileLock = enabled
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithMetrics registers operation counters on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}
