// Package amf selects the legacy or current codec by version and runs one
// value tree through a fresh session per call.
package amf

import (
	"errors"
	"fmt"

	"github.com/mtrqq/amf/pkg/amf0"
	"github.com/mtrqq/amf/pkg/amf3"
	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
)

type Version uint16

const (
	AMF0 Version = 0
	AMF3 Version = 3
)

var ErrUnsupportedVersion = errors.New("unsupported amf version")

func (v Version) Valid() bool {
	return v == AMF0 || v == AMF3
}

func (v Version) String() string {
	switch v {
	case AMF0:
		return "amf0"
	case AMF3:
		return "amf3"
	}
	return fmt.Sprintf("amf(%d)", uint16(v))
}

type Config struct {
	// Registry defaults to registry.New() when nil.
	Registry       *registry.Registry
	AssumeIntegers bool
	Lenient        bool
	MaxDepth       int
	// AVMPlus makes the legacy codec escape every composite value.
	AVMPlus bool
}

// Codec is safe for concurrent use as long as the registry is not mutated
// while values are in flight.
type Codec struct {
	registry *registry.Registry
	config   Config
}

func New(config Config) *Codec {
	reg := config.Registry
	if reg == nil {
		reg = registry.New()
	}
	config.Registry = reg

	return &Codec{
		registry: reg,
		config:   config,
	}
}

func (c *Codec) Registry() *registry.Registry {
	return c.registry
}

// RegisterClassAlias maps name to the struct type of sample.
func (c *Codec) RegisterClassAlias(name string, sample any) error {
	return c.registry.Register(name, sample)
}

func (c *Codec) AMF3Options() amf3.Options {
	return amf3.Options{
		AssumeIntegers: c.config.AssumeIntegers,
		Lenient:        c.config.Lenient,
		MaxDepth:       c.config.MaxDepth,
	}
}

func (c *Codec) AMF0Options() amf0.Options {
	return amf0.Options{
		AVMPlus:  c.config.AVMPlus,
		Lenient:  c.config.Lenient,
		MaxDepth: c.config.MaxDepth,
		AMF3:     c.AMF3Options(),
	}
}

// Serialize encodes v in a new session of the given version.
func (c *Codec) Serialize(v any, version Version) ([]byte, error) {
	ba := cursor.NewWithCapacity(64)

	var err error
	switch version {
	case AMF0:
		err = amf0.NewEncoder(ba, c.registry, c.AMF0Options()).Encode(v)
	case AMF3:
		err = amf3.NewEncoder(ba, c.registry, c.AMF3Options()).Encode(v)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, uint16(version))
	}

	if err != nil {
		return nil, fmt.Errorf("unable to serialize %v value: %w", version, err)
	}
	return ba.Bytes(), nil
}

// Deserialize decodes the first value of data in a new session of the
// given version. Bytes after that value are ignored.
func (c *Codec) Deserialize(data []byte, version Version) (any, error) {
	ba := cursor.New(data)

	var (
		v   any
		err error
	)
	switch version {
	case AMF0:
		v, err = amf0.NewDecoder(ba, c.registry, c.AMF0Options()).Decode()
	case AMF3:
		v, err = amf3.NewDecoder(ba, c.registry, c.AMF3Options()).Decode()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, uint16(version))
	}

	if err != nil {
		return nil, fmt.Errorf("unable to deserialize %v value: %w", version, err)
	}
	return v, nil
}
