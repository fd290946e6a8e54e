// Package packet frames headers and request/response messages into one
// remoting body. Every header and message is a separate codec session.
package packet

import (
	"errors"
	"fmt"
	"math"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/amf0"
	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/rs/zerolog/log"
)

// UnknownLength marks a header or message whose length was not computed
// by the sender.
const UnknownLength uint32 = math.MaxUint32

var ErrMalformedPacket = errors.New("malformed amf packet")

// Header is processed before any message. A required header that the
// receiver does not understand must fail the whole packet.
type Header struct {
	Name     string
	Required bool
	Content  any
}

type Packet struct {
	Version  amf.Version
	Headers  []Header
	Messages []Message
}

func New(version amf.Version) *Packet {
	return &Packet{Version: version}
}

// Decode reads a packet, bodies are decoded with options and reg.
func Decode(data []byte, reg *registry.Registry, options amf0.Options) (*Packet, error) {
	ba := cursor.New(data)

	version, err := ba.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read version: %v", ErrMalformedPacket, err)
	}

	p := New(amf.Version(version))
	if !p.Version.Valid() {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedPacket, version)
	}

	decoder := amf0.NewDecoder(ba, reg, options)

	headerCount, err := ba.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read header count: %v", ErrMalformedPacket, err)
	}

	for i := 0; i < int(headerCount); i++ {
		decoder.Reset()

		header, err := readHeader(ba, decoder)
		if err != nil {
			return nil, fmt.Errorf("unable to read header %d: %w", i, err)
		}
		p.Headers = append(p.Headers, header)
	}

	messageCount, err := ba.ReadUint16()
	if err != nil {
		return nil, fmt.Errorf("%w: unable to read message count: %v", ErrMalformedPacket, err)
	}

	for i := 0; i < int(messageCount); i++ {
		decoder.Reset()

		message, err := readMessage(ba, decoder)
		if err != nil {
			return nil, fmt.Errorf("unable to read message %d: %w", i, err)
		}
		p.Messages = append(p.Messages, message)
	}

	if ba.Available() > 0 {
		log.Debug().Int("trailing", ba.Available()).Msg("ignoring bytes after last packet message")
	}
	return p, nil
}

func readContent(ba *cursor.ByteArray, decoder *amf0.Decoder, name string) (any, error) {
	length, err := ba.ReadUint32()
	if err != nil {
		return nil, fmt.Errorf("unable to read length: %w", err)
	}

	start := ba.Position()
	content, err := decoder.Decode()
	if err != nil {
		return nil, err
	}

	if read := ba.Position() - start; length != UnknownLength && uint64(read) != uint64(length) {
		log.Debug().Str("name", name).Uint32("declared", length).Int("read", read).Msg("content length does not match declared length")
	}
	return content, nil
}

func readHeader(ba *cursor.ByteArray, decoder *amf0.Decoder) (Header, error) {
	var (
		header Header
		err    error
	)

	if header.Name, err = ba.ReadUTF(); err != nil {
		return header, fmt.Errorf("unable to read name: %w", err)
	}
	if header.Required, err = ba.ReadBool(); err != nil {
		return header, fmt.Errorf("unable to read required flag of %q: %w", header.Name, err)
	}
	if header.Content, err = readContent(ba, decoder, header.Name); err != nil {
		return header, fmt.Errorf("unable to read content of %q: %w", header.Name, err)
	}
	return header, nil
}

func readMessage(ba *cursor.ByteArray, decoder *amf0.Decoder) (Message, error) {
	var (
		message Message
		err     error
	)

	if message.TargetURI, err = ba.ReadUTF(); err != nil {
		return message, fmt.Errorf("unable to read target: %w", err)
	}
	if message.ResponseURI, err = ba.ReadUTF(); err != nil {
		return message, fmt.Errorf("unable to read response uri of %q: %w", message.TargetURI, err)
	}
	if message.Content, err = readContent(ba, decoder, message.TargetURI); err != nil {
		return message, fmt.Errorf("unable to read content of %q: %w", message.TargetURI, err)
	}
	return message, nil
}

// Encode writes the packet. Version 3 packets escape every composite body
// into the current format.
func (p *Packet) Encode(reg *registry.Registry, options amf0.Options) ([]byte, error) {
	if !p.Version.Valid() {
		return nil, fmt.Errorf("%w: version %d", ErrMalformedPacket, uint16(p.Version))
	}
	if len(p.Headers) > math.MaxUint16 || len(p.Messages) > math.MaxUint16 {
		return nil, fmt.Errorf("%w: %d headers and %d messages", ErrMalformedPacket, len(p.Headers), len(p.Messages))
	}

	if p.Version == amf.AMF3 {
		options.AVMPlus = true
	}

	ba := cursor.NewWithCapacity(256)
	encoder := amf0.NewEncoder(ba, reg, options)

	ba.WriteUint16(uint16(p.Version))
	ba.WriteUint16(uint16(len(p.Headers)))
	for _, header := range p.Headers {
		encoder.Reset()

		if err := ba.WriteUTF(header.Name); err != nil {
			return nil, fmt.Errorf("unable to write header name: %w", err)
		}
		ba.WriteBool(header.Required)
		if err := writeContent(ba, encoder, header.Content); err != nil {
			return nil, fmt.Errorf("unable to write header %q: %w", header.Name, err)
		}
	}

	ba.WriteUint16(uint16(len(p.Messages)))
	for _, message := range p.Messages {
		encoder.Reset()

		if err := ba.WriteUTF(message.TargetURI); err != nil {
			return nil, fmt.Errorf("unable to write message target: %w", err)
		}
		if err := ba.WriteUTF(message.ResponseURI); err != nil {
			return nil, fmt.Errorf("unable to write response uri: %w", err)
		}
		if err := writeContent(ba, encoder, message.Content); err != nil {
			return nil, fmt.Errorf("unable to write message %q: %w", message.TargetURI, err)
		}
	}

	return ba.Bytes(), nil
}

// writeContent writes the body behind its length, which is patched once
// the body is written.
func writeContent(ba *cursor.ByteArray, encoder *amf0.Encoder, content any) error {
	lengthAt := ba.Position()
	ba.WriteUint32(0)

	start := ba.Position()
	if err := encoder.Encode(content); err != nil {
		return err
	}
	end := ba.Position()

	if err := ba.SetPosition(lengthAt); err != nil {
		return err
	}
	ba.WriteUint32(uint32(end - start))
	return ba.SetPosition(end)
}

// Header returns the first header called name.
func (p *Packet) Header(name string) (Header, bool) {
	for _, header := range p.Headers {
		if header.Name == name {
			return header, true
		}
	}
	return Header{}, false
}
