package sol

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/cursor"
	"github.com/mtrqq/amf/pkg/registry"
	"github.com/mtrqq/amf/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// settings is a player settings file holding booleans, a number and
// strings in the legacy format.
var settings = []byte{
	0x00, 0xbf, 0x00, 0x00, 0x00, 0xbf, 0x54, 0x43, 0x53, 0x4f, 0x00, 0x04, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x1d, 0x70, 0x6c, 0x61, 0x79, 0x2e, 0x63, 0x70, 0x72, 0x65, 0x77, 0x72, 0x69, 0x74, 0x74,
	0x65, 0x6e, 0x2e, 0x6e, 0x65, 0x74, 0x2f, 0x73, 0x65, 0x74, 0x74, 0x69, 0x6e, 0x67, 0x73, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x05, 0x61, 0x6c, 0x6c, 0x6f, 0x77, 0x01, 0x00, 0x00, 0x00, 0x06, 0x61,
	0x6c, 0x77, 0x61, 0x79, 0x73, 0x01, 0x00, 0x00, 0x00, 0x0b, 0x61, 0x6c, 0x6c, 0x6f, 0x77, 0x73,
	0x65, 0x63, 0x75, 0x72, 0x65, 0x01, 0x00, 0x00, 0x00, 0x0c, 0x61, 0x6c, 0x77, 0x61, 0x79, 0x73,
	0x73, 0x65, 0x63, 0x75, 0x72, 0x65, 0x01, 0x00, 0x00, 0x00, 0x06, 0x6b, 0x6c, 0x69, 0x6d, 0x69,
	0x74, 0x00, 0x40, 0x59, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x0b, 0x68, 0x73, 0x74,
	0x73, 0x45, 0x6e, 0x61, 0x62, 0x6c, 0x65, 0x64, 0x01, 0x00, 0x00, 0x00, 0x0a, 0x68, 0x73, 0x74,
	0x73, 0x4d, 0x61, 0x78, 0x41, 0x67, 0x65, 0x02, 0x00, 0x01, 0x30, 0x00, 0x00, 0x10, 0x68, 0x73,
	0x74, 0x73, 0x49, 0x6e, 0x63, 0x53, 0x75, 0x62, 0x44, 0x6f, 0x6d, 0x61, 0x69, 0x6e, 0x01, 0x00,
	0x00, 0x00, 0x0d, 0x68, 0x73, 0x74, 0x73, 0x53, 0x74, 0x61, 0x72, 0x74, 0x54, 0x69, 0x6d, 0x65,
	0x02, 0x00, 0x01, 0x30, 0x00,
}

func settingsDocument() *Document {
	doc := NewDocument("play.cprewritten.net/settings", amf.AMF0)
	doc.Set("allow", false)
	doc.Set("always", false)
	doc.Set("allowsecure", false)
	doc.Set("alwayssecure", false)
	doc.Set("klimit", 100.0)
	doc.Set("hstsEnabled", false)
	doc.Set("hstsMaxAge", "0")
	doc.Set("hstsIncSubDomain", false)
	doc.Set("hstsStartTime", "0")
	return doc
}

func TestParseFixture(t *testing.T) {
	file, err := Parse(settings, registry.New())
	require.NoError(t, err)

	require.NotNil(t, file.Document)
	assert.Equal(t, settingsDocument(), file.Document)
	assert.Empty(t, file.Path)
}

func TestMarshalFixture(t *testing.T) {
	file := &File{Document: settingsDocument()}

	data, err := file.Marshal(registry.New())
	require.NoError(t, err)
	assert.Equal(t, settings, data)
}

func TestReadTagHeader(t *testing.T) {
	header, err := readTagHeader(cursor.New(settings))
	require.NoError(t, err)
	assert.Equal(t, TagHeader{Type: TagLSO, ContentLength: 191, HeaderLength: 6}, header)
	assert.Equal(t, 197, header.TagLength())

	header, err = readTagHeader(cursor.New([]byte{0x00, 0xC5}))
	require.NoError(t, err)
	assert.Equal(t, TagHeader{Type: TagFilePath, ContentLength: 5, HeaderLength: 2}, header)
}

func TestRoundTrip(t *testing.T) {
	reg := registry.New()
	shared := value.NewObject("")
	shared.Set("x", 1.0)

	v3 := NewDocument("game/save", amf.AMF3)
	v3.Set("level", 3)
	v3.Set("name", "name")
	v3.Set("first", shared)
	v3.Set("second", shared)
	v3.Set("scores", value.NewArray(1, 2, 3))

	v0 := NewDocument("game/save", amf.AMF0)
	v0.Set("first", shared)
	v0.Set("second", shared)
	v0.Set("when", value.NewDate(value.DateFromMillis(1500).Time))

	tests := []struct {
		name string
		file *File
	}{
		{name: "current format", file: &File{Document: v3}},
		{name: "legacy format", file: &File{Document: v0}},
		{name: "with file path", file: &File{Document: v0, Path: "/tmp/game.swf"}},
		{name: "file path only", file: &File{Path: "/tmp/game.swf"}},
		{name: "empty document", file: &File{Document: NewDocument("x", amf.AMF0)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := tt.file.Marshal(reg)
			require.NoError(t, err)

			got, err := Parse(data, reg)
			require.NoError(t, err)
			assert.Equal(t, tt.file, got)
		})
	}
}

func TestEntriesShareOneSession(t *testing.T) {
	reg := registry.New()
	shared := value.NewObject("")

	doc := NewDocument("f", amf.AMF0)
	doc.Set("a", shared)
	doc.Set("b", shared)

	data, err := (&File{Document: doc}).Marshal(reg)
	require.NoError(t, err)
	// the second entry is a reference to the first
	assert.Equal(t, []byte{0x00, 0x01, 'b', 0x07, 0x00, 0x00, 0x00}, data[len(data)-7:])

	file, err := Parse(data, reg)
	require.NoError(t, err)
	a, _ := file.Document.Get("a")
	b, _ := file.Document.Get("b")
	assert.Same(t, a, b)
}

func TestSkipsUnknownTags(t *testing.T) {
	data := append([]byte{0x01, 0x03, 'a', 'b', 'c'}, settings...)

	file, err := Parse(data, registry.New())
	require.NoError(t, err)
	assert.Equal(t, settingsDocument(), file.Document)
}

func TestParseErrors(t *testing.T) {
	badSignature := append([]byte(nil), settings...)
	badSignature[6] = 'X'

	badVersion := append([]byte(nil), settings...)
	badVersion[50] = 2

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{name: "bad signature", data: badSignature, wantErr: ErrMalformedSignature},
		{name: "bad version", data: badVersion, wantErr: ErrUnsupportedContainerVersion},
		{name: "truncated tag", data: settings[:100], wantErr: ErrMalformedTag},
		{name: "negative length", data: []byte{0x00, 0xBF, 0xFF, 0xFF, 0xFF, 0xFF}, wantErr: ErrMalformedTag},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.data, registry.New())
			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestParseRejectsTrailingByte(t *testing.T) {
	reg := registry.New()
	content, err := settingsDocument().marshal(reg)
	require.NoError(t, err)

	ba := cursor.NewWithCapacity(len(content) + 6)
	require.NoError(t, writeTag(ba, TagLSO, append(content, 0x00)))

	_, err = Parse(ba.Bytes(), reg)
	require.Error(t, err)
}

func TestMarshalRejectsIndexedEntries(t *testing.T) {
	doc := NewDocument("scores", amf.AMF3)
	doc.Set("best", 12.5)
	doc.Body.Dense = []any{"first"}

	_, err := (&File{Document: doc}).Marshal(registry.New())
	require.ErrorIs(t, err, ErrIndexedEntries)
}

func TestReadWriteFile(t *testing.T) {
	reg := registry.New()
	path := filepath.Join(t.TempDir(), "nested", "settings.sol")

	require.NoError(t, WriteFile(path, &File{Document: settingsDocument()}, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, settings, data)

	file, err := ReadFile(path, reg)
	require.NoError(t, err)
	assert.Equal(t, settingsDocument(), file.Document)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.sol"), reg)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
