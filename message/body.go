package message

import (
	"encoding/json"
	"fmt"
	"math"
	"net"
	"strconv"
)

// Body is the structured document carried by a message.
type Body map[string]any

func (b Body) Has(key string) bool {
	v, ok := b[key]
	return ok && v != nil
}

func (b Body) String(key string) (string, bool) {
	s, ok := b[key].(string)
	return s, ok
}

func (b Body) Int(key string) (int, bool) {
	n, ok := AsInt(b[key])
	return int(n), ok
}

func (b Body) Object(key string) (map[string]any, bool) {
	return AsObject(b[key])
}

func (b Body) Array(key string) ([]any, bool) {
	a, ok := b[key].([]any)
	return a, ok
}

// AsInt converts any integral value a codec may produce into an int64.
// Floats qualify only when they have no fractional part.
func AsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		f := float64(n)
		if f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

// AsFloat converts any numeric value into a float64.
func AsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	if i, ok := AsInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// AsObject returns v as a string-keyed map. MessagePack may hand back maps
// keyed by interface{}; those are converted when every key is a string.
func AsObject(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Body:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			ks, ok := k.(string)
			if !ok {
				return nil, false
			}
			out[ks] = val
		}
		return out, true
	}
	return nil, false
}

// Address is a provider endpoint.
type Address struct {
	IP   string `json:"ip" msgpack:"ip" yaml:"ip"`
	Port int    `json:"port" msgpack:"port" yaml:"port"`
}

func (a Address) String() string {
	return net.JoinHostPort(a.IP, strconv.Itoa(a.Port))
}

// ParseAddress parses "ip:port".
func ParseAddress(s string) (Address, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return Address{}, err
	}
	p, err := strconv.Atoi(port)
	if err != nil {
		return Address{}, fmt.Errorf("message: bad port in %q: %w", s, err)
	}
	return Address{IP: host, Port: p}, nil
}

func (a Address) toBody() map[string]any {
	return map[string]any{KeyIP: a.IP, KeyPort: a.Port}
}

func addressFrom(v any) (Address, bool) {
	m, ok := AsObject(v)
	if !ok {
		return Address{}, false
	}
	ip, ok := m[KeyIP].(string)
	if !ok {
		return Address{}, false
	}
	port, ok := AsInt(m[KeyPort])
	if !ok {
		return Address{}, false
	}
	return Address{IP: ip, Port: int(port)}, true
}
