// Package gateway serves remoting packets over HTTP and calls remote
// services with them.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	ErrMethodNotFound   = errors.New("method not found")
	ErrInvalidMethod    = errors.New("invalid method name")
	ErrServiceExists    = errors.New("service already registered")
	ErrHeaderNotHandled = errors.New("required header not understood")
)

// HandlerFunc runs one call, args are the elements of the message body.
type HandlerFunc func(ctx context.Context, args []any) (any, error)

// Service groups the methods callable as "<name>.<method>". Only
// registered methods are callable.
type Service struct {
	name string

	lock    sync.RWMutex
	methods map[string]HandlerFunc
}

func NewService(name string) *Service {
	return &Service{
		name:    name,
		methods: make(map[string]HandlerFunc),
	}
}

func (s *Service) Name() string {
	return s.name
}

func (s *Service) Register(method string, handler HandlerFunc) error {
	if method == "" || strings.Contains(method, ".") || handler == nil {
		return fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	s.methods[method] = handler
	return nil
}

func (s *Service) Handler(method string) (HandlerFunc, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	handler, ok := s.methods[method]
	return handler, ok
}

func (s *Service) Methods() []string {
	s.lock.RLock()
	defer s.lock.RUnlock()

	methods := make([]string, 0, len(s.methods))
	for method := range s.methods {
		methods = append(methods, method)
	}
	sort.Strings(methods)
	return methods
}

// splitTarget splits "a.b.method" into the service "a.b" and "method".
func splitTarget(target string) (string, string, bool) {
	i := strings.LastIndexByte(target, '.')
	if i <= 0 || i == len(target)-1 {
		return "", "", false
	}
	return target[:i], target[i+1:], true
}
