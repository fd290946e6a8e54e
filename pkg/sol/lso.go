package sol

import (
	"errors"
	"fmt"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/amf0"
	"github.com/mtrqq/amf/pkg/amf3"
	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
)

const signature = "TCSO"

// reserved follows the signature in every LSO body.
var reserved = []byte{0x00, 0x04, 0x00, 0x00, 0x00, 0x00}

var (
	ErrMalformedSignature          = errors.New("missing TCSO signature, not a sol file")
	ErrUnsupportedContainerVersion = errors.New("unsupported sol container version")
	ErrIndexedEntries              = errors.New("sol body only holds named entries")
)

// Document is the LSO body: a filename, the codec version of the entries
// and the entries themselves in file order.
type Document struct {
	Filename string
	Version  amf.Version
	Body     *value.AssocArray
}

func NewDocument(filename string, version amf.Version) *Document {
	return &Document{
		Filename: filename,
		Version:  version,
		Body:     value.NewAssocArray(),
	}
}

func (d *Document) Get(key string) (any, bool) {
	if d.Body == nil {
		return nil, false
	}
	return d.Body.Get(key)
}

func (d *Document) Set(key string, v any) {
	if d.Body == nil {
		d.Body = value.NewAssocArray()
	}
	d.Body.Set(key, v)
}

// parseDocument reads an LSO tag content. All entries share one codec
// session.
func parseDocument(content []byte, reg *registry.Registry) (*Document, error) {
	ba := cursor.New(content)

	sig, err := ba.ReadUTFBytes(len(signature))
	if err != nil || sig != signature {
		return nil, ErrMalformedSignature
	}
	if _, err := ba.ReadBytes(len(reserved)); err != nil {
		return nil, fmt.Errorf("unable to read reserved bytes: %w", err)
	}

	doc := &Document{Body: value.NewAssocArray()}
	if doc.Filename, err = ba.ReadUTF(); err != nil {
		return nil, fmt.Errorf("unable to read filename: %w", err)
	}

	version, err := ba.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("unable to read version: %w", err)
	}
	doc.Version = amf.Version(version)
	if version > uint32(amf.AMF3) || !doc.Version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedContainerVersion, version)
	}

	var (
		decoder0 = amf0.NewDecoder(ba, reg, amf0.Options{})
		decoder3 = amf3.NewDecoder(ba, reg, amf3.Options{})
	)

	// every entry ends with its own padding byte
	for ba.Available() > 0 {
		var (
			key   string
			entry any
		)

		if doc.Version == amf.AMF3 {
			if key, err = decoder3.ReadString(); err != nil {
				return nil, fmt.Errorf("unable to read entry key: %w", err)
			}
			entry, err = decoder3.Decode()
		} else {
			if key, err = ba.ReadUTF(); err != nil {
				return nil, fmt.Errorf("unable to read entry key: %w", err)
			}
			entry, err = decoder0.Decode()
		}
		if err != nil {
			return nil, fmt.Errorf("unable to read entry %q: %w", key, err)
		}

		if _, err := ba.ReadUint8(); err != nil {
			return nil, fmt.Errorf("unable to read padding after %q: %w", key, err)
		}
		doc.Body.Set(key, entry)
	}

	return doc, nil
}

func (d *Document) marshal(reg *registry.Registry) ([]byte, error) {
	if !d.Version.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedContainerVersion, uint16(d.Version))
	}

	ba := cursor.NewWithCapacity(256)
	ba.WriteUTFBytes(signature)
	ba.WriteBytes(reserved)
	if err := ba.WriteUTF(d.Filename); err != nil {
		return nil, fmt.Errorf("unable to write filename: %w", err)
	}
	ba.WriteUint32(uint32(d.Version))

	if d.Body == nil {
		return ba.Bytes(), nil
	}
	if len(d.Body.Dense) > 0 {
		return nil, fmt.Errorf("%w: %d indexed elements", ErrIndexedEntries, len(d.Body.Dense))
	}

	var (
		encoder0 = amf0.NewEncoder(ba, reg, amf0.Options{})
		encoder3 = amf3.NewEncoder(ba, reg, amf3.Options{})
	)

	for _, entry := range d.Body.Entries {
		var err error
		if d.Version == amf.AMF3 {
			if err = encoder3.WriteString(entry.Key); err != nil {
				return nil, fmt.Errorf("unable to write entry key: %w", err)
			}
			err = encoder3.Encode(entry.Value)
		} else {
			if err = ba.WriteUTF(entry.Key); err != nil {
				return nil, fmt.Errorf("unable to write entry key: %w", err)
			}
			err = encoder0.Encode(entry.Value)
		}
		if err != nil {
			return nil, fmt.Errorf("unable to write entry %q: %w", entry.Key, err)
		}

		ba.WriteUint8(0)
	}

	return ba.Bytes(), nil
}
