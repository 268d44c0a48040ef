package jsonrpc

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf(&Error{})
)

type Parameter struct {
	Name     string
	Optional bool
}

type Method struct {
	Name    string
	Params  []Parameter
	Handler any

	// set by bind
	handler      reflect.Value
	needsContext bool
}

// bind checks the handler signature against Params.
func (m *Method) bind() error {
	t := reflect.TypeOf(m.Handler)
	if t == nil || t.Kind() != reflect.Func {
		return errors.New("handler must be a function")
	}

	m.needsContext = t.NumIn() > 0 && t.In(0).Implements(contextType)
	numParams := t.NumIn()
	if m.needsContext {
		numParams--
	}
	switch {
	case numParams != len(m.Params):
		return errors.New("number of non-context function params and param names must match")
	case t.NumOut() != 2:
		return errors.New("handler must return 2 values")
	case t.Out(1) != errorType:
		return errors.New("second return value must be a *jsonrpc.Error")
	}

	m.handler = reflect.ValueOf(m.Handler)
	return nil
}

// paramType is the Go type of the i-th declared parameter.
func (m *Method) paramType(i int) reflect.Type {
	if m.needsContext {
		i++
	}
	return m.handler.Type().In(i)
}

func (m *Method) call(args []reflect.Value) (any, *Error) {
	out := m.handler.Call(args)
	if rpcErr := out[1].Interface().(*Error); rpcErr != nil {
		return nil, rpcErr
	}
	return out[0].Interface(), nil
}

// arguments decodes params, positional or named, into the argument list of method. Absent
// optional parameters are passed as zero values.
func (s *Server) arguments(ctx context.Context, method *Method, params json.RawMessage) ([]reflect.Value, error) {
	var (
		lookup  func(i int) (json.RawMessage, bool)
		missing = "missing non-optional param"
	)
	switch {
	case null(params):
		lookup = func(int) (json.RawMessage, bool) { return nil, false }
		missing = "missing non-optional param field"
	case params[0] == '[':
		var list []json.RawMessage
		if err := json.Unmarshal(params, &list); err != nil {
			return nil, err
		}
		if len(list) > len(method.Params) {
			return nil, errors.New("too many params in list")
		}
		lookup = func(i int) (json.RawMessage, bool) {
			if i < len(list) {
				return list[i], true
			}
			return nil, false
		}
		missing = "missing non-optional param in list"
	default:
		var named map[string]json.RawMessage
		if err := json.Unmarshal(params, &named); err != nil {
			return nil, err
		}
		lookup = func(i int) (json.RawMessage, bool) {
			raw, ok := named[method.Params[i].Name]
			return raw, ok
		}
	}

	args := make([]reflect.Value, 0, len(method.Params)+1)
	if method.needsContext {
		args = append(args, reflect.ValueOf(ctx))
	}
	for i, param := range method.Params {
		t := method.paramType(i)
		raw, found := lookup(i)
		if !found {
			if !param.Optional {
				return nil, errors.New(missing)
			}
			args = append(args, reflect.Zero(t))
			continue
		}

		arg, err := s.decodeParam(raw, t)
		if err != nil {
			return nil, err
		}
		args = append(args, arg)
	}
	return args, nil
}

func (s *Server) decodeParam(raw json.RawMessage, t reflect.Type) (reflect.Value, error) {
	ptr := reflect.New(t)
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return reflect.Value{}, err
	}
	if s.validator == nil {
		return ptr.Elem(), nil
	}
	if err := s.validate(ptr.Elem()); err != nil {
		return reflect.Value{}, err
	}
	return ptr.Elem(), nil
}

// validate runs the validator on structs, pointers to structs and their slices.
func (s *Server) validate(v reflect.Value) error {
	switch v.Kind() {
	case reflect.Pointer:
		if !v.IsNil() && v.Elem().Kind() == reflect.Struct {
			return s.validator.Struct(v.Interface())
		}
	case reflect.Struct:
		return s.validator.Struct(v.Interface())
	case reflect.Slice, reflect.Array:
		for i := range v.Len() {
			if err := s.validate(v.Index(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
