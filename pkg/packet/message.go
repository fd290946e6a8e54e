package packet

import (
	"errors"
	"strings"

	"github.com/mtrqq/amf/pkg/value"
)

const (
	ResultSuffix = "onResult"
	StatusSuffix = "onStatus"

	// NullURI is the response uri of replies, which expect no answer.
	NullURI = "null"

	CallFailed = "NetConnection.Call.Failed"
)

type Message struct {
	TargetURI   string
	ResponseURI string
	Content     any
}

// ResolveURI appends suffix to the response uri of m.
func (m *Message) ResolveURI(suffix string) string {
	if suffix == "" {
		return m.ResponseURI
	}
	return strings.TrimSuffix(m.ResponseURI, "/") + "/" + suffix
}

// Args returns the call arguments carried by a request message. Content
// that is not an array is a single argument.
func (m *Message) Args() []any {
	switch content := m.Content.(type) {
	case nil:
		return nil
	case *value.Array:
		return content.Elements
	case []any:
		return content
	case *value.AssocArray:
		return content.Dense
	}
	return []any{m.Content}
}

// Result builds the reply carrying a successful call result.
func (m *Message) Result(content any) Message {
	return Message{
		TargetURI:   m.ResolveURI(ResultSuffix),
		ResponseURI: NullURI,
		Content:     content,
	}
}

// Status builds the reply reporting a failed call.
func (m *Message) Status(content any) Message {
	return Message{
		TargetURI:   m.ResolveURI(StatusSuffix),
		ResponseURI: NullURI,
		Content:     content,
	}
}

// IsResult reports whether m answers the request with the given response
// uri successfully.
func (m *Message) IsResult(responseURI string) bool {
	return m.TargetURI == strings.TrimSuffix(responseURI, "/")+"/"+ResultSuffix
}

func (m *Message) IsStatus(responseURI string) bool {
	return m.TargetURI == strings.TrimSuffix(responseURI, "/")+"/"+StatusSuffix
}

// StatusCoder is implemented by errors that carry their own status code.
type StatusCoder interface {
	StatusCode() string
}

// StatusFromError builds the status object sent back for err.
func StatusFromError(err error) *value.Object {
	code := CallFailed
	var coder StatusCoder
	if errors.As(err, &coder) {
		code = coder.StatusCode()
	}

	status := value.NewObject("")
	status.Set("level", "error")
	status.Set("code", code)
	status.Set("description", err.Error())
	return status
}
