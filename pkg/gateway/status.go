package gateway

import (
	"fmt"

	"github.com/mtrqq/amf/pkg/packet"
	"github.com/mtrqq/amf/pkg/value"
)

// StatusError is an onStatus reply received for a call.
type StatusError struct {
	Target      string
	Level       string
	Code        string
	Description string
	Content     any
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("%s failed: %s", e.Target, e.Description)
	}
	return fmt.Sprintf("%s failed with %s: %s", e.Target, e.Code, e.Description)
}

func (e *StatusError) StatusCode() string {
	return e.Code
}

var _ packet.StatusCoder = (*StatusError)(nil)

func stringMember(content any, name string) string {
	object, ok := content.(*value.Object)
	if !ok {
		return ""
	}
	member, ok := object.Get(name)
	if !ok {
		return ""
	}
	s, _ := member.(string)
	return s
}

func statusError(target string, content any) *StatusError {
	e := &StatusError{
		Target:      target,
		Level:       stringMember(content, "level"),
		Code:        stringMember(content, "code"),
		Description: stringMember(content, "description"),
		Content:     content,
	}
	if e.Description == "" {
		e.Description = fmt.Sprint(value.Plain(content))
	}
	return e
}
