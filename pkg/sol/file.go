package sol

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/rs/zerolog/log"
)

// File is a parsed container. Document is nil when the container has no
// LSO tag, Path is empty without a FilePath tag.
type File struct {
	Document *Document
	Path     string
}

// Parse reads every tag of data, tags of unknown type are skipped.
func Parse(data []byte, reg *registry.Registry) (*File, error) {
	ba := cursor.New(data)
	file := &File{}

	for ba.Available() > 0 {
		header, err := readTagHeader(ba)
		if err != nil {
			return nil, err
		}

		content, err := ba.ReadBytes(header.ContentLength)
		if err != nil {
			return nil, fmt.Errorf("%w: %v content of %d bytes: %v", ErrMalformedTag, header.Type, header.ContentLength, err)
		}

		switch header.Type {
		case TagLSO:
			if file.Document, err = parseDocument(content, reg); err != nil {
				return nil, fmt.Errorf("unable to parse lso tag: %w", err)
			}
		case TagFilePath:
			if file.Path, err = cursor.New(content).ReadUTF(); err != nil {
				return nil, fmt.Errorf("unable to parse file path tag: %w", err)
			}
		default:
			log.Debug().Stringer("tag", header.Type).Int("length", header.TagLength()).Msg("skipping unknown sol tag")
		}
	}

	return file, nil
}

// Marshal writes the LSO tag followed by the FilePath tag when set.
func (f *File) Marshal(reg *registry.Registry) ([]byte, error) {
	ba := cursor.NewWithCapacity(256)

	if f.Document != nil {
		content, err := f.Document.marshal(reg)
		if err != nil {
			return nil, fmt.Errorf("unable to marshal lso tag: %w", err)
		}
		if err := writeTag(ba, TagLSO, content); err != nil {
			return nil, err
		}
	}

	if f.Path != "" {
		path := cursor.NewWithCapacity(len(f.Path) + 2)
		if err := path.WriteUTF(f.Path); err != nil {
			return nil, fmt.Errorf("unable to marshal file path tag: %w", err)
		}
		if err := writeTag(ba, TagFilePath, path.Bytes()); err != nil {
			return nil, err
		}
	}

	return ba.Bytes(), nil
}

func ReadFile(path string, reg *registry.Registry) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	file, err := Parse(data, reg)
	if err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return file, nil
}

// WriteFile replaces path atomically.
func WriteFile(path string, file *File, reg *registry.Registry) error {
	data, err := file.Marshal(reg)
	if err != nil {
		return err
	}
	return writeAtomic(path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".sol-*.tmp")
	if err != nil {
		return fmt.Errorf("unable to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("unable to write %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("unable to close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("unable to rename %s to %s: %w", tmpPath, path, err)
	}

	success = true
	return nil
}
