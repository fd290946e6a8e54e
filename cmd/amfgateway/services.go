package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"sort"
	"time"

	"github.com/mtrqq/amf/pkg/amf"
	"github.com/mtrqq/amf/pkg/gateway"
	"github.com/mtrqq/amf/pkg/sol"
	"github.com/mtrqq/amf/pkg/value"
	"github.com/rs/zerolog/log"
)

var errBadArguments = errors.New("bad arguments")

// serviceError attaches a status code to errors returned by the store
// service.
type serviceError struct {
	code string
	err  error
}

func (e *serviceError) Error() string      { return e.err.Error() }
func (e *serviceError) Unwrap() error      { return e.err }
func (e *serviceError) StatusCode() string { return e.code }

func codedError(err error) error {
	switch {
	case errors.Is(err, errBadArguments):
		return &serviceError{code: "Store.BadArguments", err: err}
	case errors.Is(err, sol.ErrInvalidName):
		return &serviceError{code: "Store.InvalidName", err: err}
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, sol.ErrNoDocument):
		return &serviceError{code: "Store.NotFound", err: err}
	}
	return err
}

func echoService() *gateway.Service {
	echo := gateway.NewService("echo")

	mustRegister(echo, "echo", func(_ context.Context, args []any) (any, error) {
		if len(args) == 1 {
			return args[0], nil
		}
		return value.NewArray(args...), nil
	})
	mustRegister(echo, "ping", func(context.Context, []any) (any, error) {
		return value.NewDate(time.Now()), nil
	})
	return echo
}

// storeService exposes a sol.Store: get(name), put(name, body[, version]),
// delete(name) and names().
func storeService(store *sol.Store) *gateway.Service {
	service := gateway.NewService("store")

	mustRegister(service, "get", func(_ context.Context, args []any) (any, error) {
		name, err := nameArg(args)
		if err != nil {
			return nil, codedError(err)
		}

		doc, err := store.Fetch(name)
		if err != nil {
			return nil, codedError(err)
		}
		return doc.Body, nil
	})

	mustRegister(service, "put", func(_ context.Context, args []any) (any, error) {
		name, err := nameArg(args)
		if err != nil {
			return nil, codedError(err)
		}
		if len(args) < 2 {
			return nil, codedError(fmt.Errorf("%w: put needs a name and a body", errBadArguments))
		}

		body, err := toAssocArray(args[1])
		if err != nil {
			return nil, codedError(err)
		}

		version := amf.AMF3
		if len(args) > 2 {
			if version, err = versionArg(args[2]); err != nil {
				return nil, codedError(err)
			}
		}

		doc := sol.NewDocument(name, version)
		doc.Body = body
		if err := store.Put(name, doc); err != nil {
			return nil, codedError(err)
		}

		log.Debug().Str("name", name).Int("entries", body.Len()).Msg("stored shared object")
		return true, nil
	})

	mustRegister(service, "delete", func(_ context.Context, args []any) (any, error) {
		name, err := nameArg(args)
		if err != nil {
			return nil, codedError(err)
		}
		if err := store.Delete(name); err != nil {
			return nil, codedError(err)
		}
		return true, nil
	})

	mustRegister(service, "names", func(context.Context, []any) (any, error) {
		if err := store.Sync(); err != nil {
			return nil, err
		}

		names, err := store.Names()
		if err != nil {
			return nil, err
		}

		out := value.NewArray()
		for _, name := range names {
			out.Push(name)
		}
		return out, nil
	})

	return service
}

func mustRegister(service *gateway.Service, method string, handler gateway.HandlerFunc) {
	if err := service.Register(method, handler); err != nil {
		log.Fatal().Err(err).Str("service", service.Name()).Str("method", method).Msg("unable to register method")
	}
}

func nameArg(args []any) (string, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("%w: missing name", errBadArguments)
	}
	name, ok := args[0].(string)
	if !ok {
		return "", fmt.Errorf("%w: name must be a string, got %T", errBadArguments, args[0])
	}
	return name, nil
}

func versionArg(arg any) (amf.Version, error) {
	var n float64
	switch t := arg.(type) {
	case float64:
		n = t
	case int:
		n = float64(t)
	default:
		return 0, fmt.Errorf("%w: version must be a number, got %T", errBadArguments, arg)
	}

	if n < 0 || n > math.MaxUint16 || n != math.Trunc(n) || !amf.Version(n).Valid() {
		return 0, fmt.Errorf("%w: unsupported version %v", errBadArguments, arg)
	}
	return amf.Version(n), nil
}

// toAssocArray accepts the shapes a document body arrives in: an
// associative array, an anonymous object or a plain map.
func toAssocArray(v any) (*value.AssocArray, error) {
	switch body := v.(type) {
	case *value.AssocArray:
		if len(body.Dense) > 0 {
			return nil, fmt.Errorf("%w: body has %d indexed elements, documents only hold named entries", errBadArguments, len(body.Dense))
		}
		return body, nil
	case *value.Object:
		out := value.NewAssocArray()
		for _, property := range body.All() {
			out.Set(property.Name, property.Value)
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(body))
		for key := range body {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		out := value.NewAssocArray()
		for _, key := range keys {
			out.Set(key, body[key])
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: body must be an object, got %T", errBadArguments, v)
}
