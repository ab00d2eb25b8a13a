package server

import (
	"context"
	"fmt"
	"mini-jsonrpc/message"
	"reflect"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// methodType is one exported method of a receiver with the signature
//
//	func (r *T) Name(args *A, reply *R) error
//	func (r *T) Name(ctx context.Context, args *A, reply *R) error
type methodType struct {
	method    reflect.Method
	withCtx   bool
	ArgType   reflect.Type
	ReplyType reflect.Type
}

type service struct {
	name   string
	rcvr   reflect.Value
	typ    reflect.Type
	method map[string]*methodType
}

// newService scans rcvr, which must be a pointer to a struct, for methods of
// the RPC shape. A receiver without any is rejected.
func newService(rcvr any) (*service, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("server: receiver must be a pointer, got %v", typ)
	}
	if typ.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("server: receiver must point to a struct, got %s", typ.Elem().Kind())
	}
	s := &service{
		name:   typ.Elem().Name(),
		rcvr:   reflect.ValueOf(rcvr),
		typ:    typ,
		method: make(map[string]*methodType),
	}
	s.registerMethods()
	if len(s.method) == 0 {
		return nil, fmt.Errorf("server: %s has no methods of the form Name(*Args, *Reply) error", s.name)
	}
	return s, nil
}

func (s *service) registerMethods() {
	for i := 0; i < s.typ.NumMethod(); i++ {
		m := s.typ.Method(i)
		mt := m.Type
		if mt.NumOut() != 1 || mt.Out(0) != errorType {
			continue
		}
		first := 1
		withCtx := mt.NumIn() == 4 && mt.In(1) == contextType
		if withCtx {
			first = 2
		} else if mt.NumIn() != 3 {
			continue
		}
		if mt.In(first).Kind() != reflect.Ptr || mt.In(first+1).Kind() != reflect.Ptr {
			continue
		}
		s.method[m.Name] = &methodType{
			method:    m,
			withCtx:   withCtx,
			ArgType:   mt.In(first).Elem(),
			ReplyType: mt.In(first + 1).Elem(),
		}
	}
}

func (s *service) call(ctx context.Context, mt *methodType, argv, replyv reflect.Value) error {
	in := []reflect.Value{s.rcvr, argv, replyv}
	if mt.withCtx {
		in = []reflect.Value{s.rcvr, reflect.ValueOf(ctx), argv, replyv}
	}
	out := mt.method.Func.Call(in)
	if err, _ := out[0].Interface().(error); err != nil {
		return err
	}
	return nil
}

// describes exposes every method as "Type.Method". Params are decoded into
// the args struct; a params object that does not fit is INVALID_PARAMS.
func (s *service) describes() []*ServiceDescribe {
	out := make([]*ServiceDescribe, 0, len(s.method))
	for name, mt := range s.method {
		mt := mt
		desc := &ServiceDescribe{
			method:     s.name + "." + name,
			returnType: valueTypeOf(mt.ReplyType),
			callback: func(ctx context.Context, params map[string]any) (any, error) {
				return s.invoke(ctx, mt, params)
			},
		}
		out = append(out, desc)
	}
	return out
}

func (s *service) invoke(ctx context.Context, mt *methodType, params map[string]any) (any, error) {
	argv := reflect.New(mt.ArgType)
	replyv := reflect.New(mt.ReplyType)

	data, err := json.Marshal(params)
	if err != nil {
		return nil, &message.CodeError{Code: message.CodeInvalidParams}
	}
	if err := json.Unmarshal(data, argv.Interface()); err != nil {
		return nil, &message.CodeError{Code: message.CodeInvalidParams}
	}
	if err := s.call(ctx, mt, argv, replyv); err != nil {
		return nil, err
	}

	// Results travel as plain JSON values so any codec can carry them.
	data, err = json.Marshal(replyv.Interface())
	if err != nil {
		return nil, fmt.Errorf("server: encode reply of %s.%s: %w", s.name, mt.method.Name, err)
	}
	var result any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("server: encode reply of %s.%s: %w", s.name, mt.method.Name, err)
	}
	if result == nil {
		// A reply left nil is the empty value of its declared type.
		if valueTypeOf(mt.ReplyType) == Array {
			return []any{}, nil
		}
		return map[string]any{}, nil
	}
	return result, nil
}

func valueTypeOf(t reflect.Type) ValueType {
	switch t.Kind() {
	case reflect.Bool:
		return Bool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Integral
	case reflect.Float32, reflect.Float64:
		return Numeric
	case reflect.String:
		return String
	case reflect.Slice, reflect.Array:
		return Array
	}
	return Object
}
