package server

import (
	"context"
	"errors"
	"fmt"
	"mini-jsonrpc/message"
	"reflect"
)

// ValueType is the JSON-level type a parameter or a result must have.
type ValueType int

const (
	Bool ValueType = iota
	Integral
	Numeric
	String
	Array
	Object
)

var valueTypeNames = [...]string{"bool", "integral", "numeric", "string", "array", "object"}

func (v ValueType) String() string {
	if v < 0 || int(v) >= len(valueTypeNames) {
		return fmt.Sprintf("ValueType(%d)", int(v))
	}
	return valueTypeNames[v]
}

// Match reports whether x, as decoded from a message body, has type v.
// Integral accepts floats without a fractional part, since JSON decoding
// yields float64 for every number.
func (v ValueType) Match(x any) bool {
	if x == nil {
		return false
	}
	switch v {
	case Bool:
		_, ok := x.(bool)
		return ok
	case Integral:
		_, ok := message.AsInt(x)
		return ok
	case Numeric:
		_, ok := message.AsFloat(x)
		return ok
	case String:
		_, ok := x.(string)
		return ok
	case Array:
		switch reflect.TypeOf(x).Kind() {
		case reflect.Slice, reflect.Array:
			_, isBytes := x.([]byte)
			return !isBytes
		}
		return false
	case Object:
		_, ok := message.AsObject(x)
		return ok
	}
	return false
}

// ServiceCallback computes the result of one call. Returning a
// *message.CodeError selects the rcode of the response; any other error is
// answered with INTERNAL_ERROR.
type ServiceCallback func(ctx context.Context, params map[string]any) (any, error)

type ParamDescribe struct {
	Name string
	Type ValueType
}

// ServiceDescribe is a callable method with its parameter and result contract.
type ServiceDescribe struct {
	method     string
	params     []ParamDescribe
	returnType ValueType
	callback   ServiceCallback
}

func (d *ServiceDescribe) Method() string { return d.method }

func (d *ServiceDescribe) Params() []ParamDescribe {
	out := make([]ParamDescribe, len(d.params))
	copy(out, d.params)
	return out
}

func (d *ServiceDescribe) ReturnType() ValueType { return d.returnType }

// ParamCheck verifies every declared parameter is present with its type.
// Undeclared extra parameters are allowed.
func (d *ServiceDescribe) ParamCheck(params map[string]any) error {
	for _, p := range d.params {
		v, ok := params[p.Name]
		if !ok {
			return fmt.Errorf("%s: missing parameter %q", d.method, p.Name)
		}
		if !p.Type.Match(v) {
			return fmt.Errorf("%s: parameter %q is not %s", d.method, p.Name, p.Type)
		}
	}
	return nil
}

// Call runs the callback and checks the result against the return type.
func (d *ServiceDescribe) Call(ctx context.Context, params map[string]any) (any, error) {
	result, err := d.callback(ctx, params)
	if err != nil {
		return nil, err
	}
	if !d.returnType.Match(result) {
		return nil, fmt.Errorf("%s: result %T is not %s", d.method, result, d.returnType)
	}
	return result, nil
}

// DescribeBuilder assembles a ServiceDescribe:
//
//	desc, err := server.NewDescribeBuilder().
//		SetMethodName("Add").
//		SetParamsDesc("a", server.Integral).
//		SetParamsDesc("b", server.Integral).
//		SetReturnType(server.Integral).
//		SetCallback(add).
//		Build()
type DescribeBuilder struct {
	method     string
	params     []ParamDescribe
	returnType ValueType
	returnSet  bool
	callback   ServiceCallback
}

func NewDescribeBuilder() *DescribeBuilder {
	return &DescribeBuilder{}
}

func (b *DescribeBuilder) SetMethodName(name string) *DescribeBuilder {
	b.method = name
	return b
}

func (b *DescribeBuilder) SetParamsDesc(name string, vt ValueType) *DescribeBuilder {
	b.params = append(b.params, ParamDescribe{Name: name, Type: vt})
	return b
}

func (b *DescribeBuilder) SetReturnType(vt ValueType) *DescribeBuilder {
	b.returnType = vt
	b.returnSet = true
	return b
}

func (b *DescribeBuilder) SetCallback(cb ServiceCallback) *DescribeBuilder {
	b.callback = cb
	return b
}

func (b *DescribeBuilder) Build() (*ServiceDescribe, error) {
	switch {
	case b.method == "":
		return nil, errors.New("server: describe has no method name")
	case b.callback == nil:
		return nil, fmt.Errorf("server: describe %s has no callback", b.method)
	case !b.returnSet:
		return nil, fmt.Errorf("server: describe %s has no return type", b.method)
	}
	params := make([]ParamDescribe, len(b.params))
	copy(params, b.params)
	return &ServiceDescribe{
		method:     b.method,
		params:     params,
		returnType: b.returnType,
		callback:   b.callback,
	}, nil
}
