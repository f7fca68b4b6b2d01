// Package shelf stores arbitrary Go values on top of the byte-level
// savestate engine. Values are serialized with msgpack and optionally
// snappy-compressed; keys are plain strings. Callers who already hold raw
// bytes can use the engine directly and skip the codec entirely.
package shelf

import (
	"github.com/golang/snappy"
	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/savestate/savestate"
)

type Shelf struct {
	db       *savestate.DB
	handle   codec.MsgpackHandle
	compress bool
}

type config struct {
	compress  bool
	dbOptions []savestate.Option
}

type Option func(*config)

// WithCompression snappy-compresses encoded values before they reach the
// engine. A shelf must be reopened with the same setting it was written
// with.
func WithCompression() Option {
	return func(c *config) {
		c.compress = true
	}
}

// WithDBOptions passes engine options through to savestate.Open.
func WithDBOptions(opts ...savestate.Option) Option {
	return func(c *config) {
		c.dbOptions = append(c.dbOptions, opts...)
	}
}

func Open(path string, mode savestate.Mode, opts ...Option) (*Shelf, error) {
	var cfg config
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := savestate.Open(path, mode, cfg.dbOptions...)
	if err != nil {
		return nil, err
	}
	return &Shelf{db: db, compress: cfg.compress}, nil
}

// DB exposes the underlying engine.
func (s *Shelf) DB() *savestate.DB {
	return s.db
}

func (s *Shelf) encode(value any) ([]byte, error) {
	var data []byte
	if err := codec.NewEncoderBytes(&data, &s.handle).Encode(value); err != nil {
		return nil, err
	}
	if s.compress {
		data = snappy.Encode(nil, data)
	}
	return data, nil
}

func (s *Shelf) decode(data []byte, out any) error {
	if s.compress {
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return err
		}
		data = decoded
	}
	return codec.NewDecoderBytes(data, &s.handle).Decode(out)
}

func (s *Shelf) Set(key string, value any) error {
	data, err := s.encode(value)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(key), data)
}

func (s *Shelf) Get(key string, out any) error {
	data, err := s.db.Get([]byte(key))
	if err != nil {
		return err
	}
	return s.decode(data, out)
}

func (s *Shelf) Has(key string) bool {
	return s.db.Has([]byte(key))
}

func (s *Shelf) Delete(key string) error {
	return s.db.Delete([]byte(key))
}

// Pop removes key and decodes the value it held into out.
func (s *Shelf) Pop(key string, out any) error {
	data, err := s.db.Pop([]byte(key))
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return s.decode(data, out)
}

// PopItem removes the most recently inserted pair, decoding the value into
// out, and returns its key.
func (s *Shelf) PopItem(out any) (string, error) {
	item, err := s.db.PopItem()
	if err != nil {
		return "", err
	}
	if out == nil {
		return string(item.Key), nil
	}
	return string(item.Key), s.decode(item.Value, out)
}

// SetDefault decodes the current value for key into out, storing and
// returning value when the key is absent.
func (s *Shelf) SetDefault(key string, value any, out any) error {
	data, err := s.encode(value)
	if err != nil {
		return err
	}
	current, err := s.db.SetDefault([]byte(key), data)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return s.decode(current, out)
}

// Update stores every pair; map iteration order decides the write order of
// fresh keys.
func (s *Shelf) Update(items map[string]any) error {
	for key, value := range items {
		if err := s.Set(key, value); err != nil {
			return err
		}
	}
	return nil
}

// Keys return all live keys in insertion order.
func (s *Shelf) Keys() []string {
	raw := s.db.Keys()
	keys := make([]string, len(raw))
	for i, key := range raw {
		keys[i] = string(key)
	}
	return keys
}

func (s *Shelf) Len() int {
	return s.db.Len()
}

func (s *Shelf) Clear() error {
	return s.db.Clear()
}

func (s *Shelf) Sync() error {
	return s.db.Sync()
}

func (s *Shelf) Compact() error {
	return s.db.Compact()
}

func (s *Shelf) Close() error {
	return s.db.Close()
}
