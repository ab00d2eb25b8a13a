// Package message defines the six message kinds exchanged between peers.
//
// Every message is an envelope of (id, kind, body). The id is a correlation
// token chosen by whoever initiates a request; responses echo it. The body is
// a map-like document whose required fields depend on the kind:
//
//	kind              required body fields
//	────────────────  ──────────────────────────────────────────────────────
//	RPC request       method:string, params:object
//	RPC response      rcode:int, result:any (when rcode == OK)
//	Topic request     topic_key:string, optype:int, topic_msg (iff PUBLISH)
//	Topic response    rcode:int
//	Service request   method:string, optype:int, host:{ip,port} (iff not DISCOVERY)
//	Service response  rcode:int, optype:int, method + host:[] (iff DISCOVERY and OK)
//
// Check validates that contract; nothing downstream of the dispatcher acts on
// a message that failed it.
package message

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidMessage is wrapped by every Check failure.
var ErrInvalidMessage = errors.New("invalid message")

// Kind selects the concrete schema of a message body.
type Kind int32

const (
	KindRPCRequest      Kind = 0
	KindRPCResponse     Kind = 1
	KindTopicRequest    Kind = 2
	KindTopicResponse   Kind = 3
	KindServiceRequest  Kind = 4
	KindServiceResponse Kind = 5
)

func (k Kind) Valid() bool {
	return k >= KindRPCRequest && k <= KindServiceResponse
}

func (k Kind) String() string {
	switch k {
	case KindRPCRequest:
		return "rpc-request"
	case KindRPCResponse:
		return "rpc-response"
	case KindTopicRequest:
		return "topic-request"
	case KindTopicResponse:
		return "topic-response"
	case KindServiceRequest:
		return "service-request"
	case KindServiceResponse:
		return "service-response"
	}
	return fmt.Sprintf("kind(%d)", int32(k))
}

// Body field names.
const (
	KeyMethod   = "method"
	KeyParams   = "params"
	KeyTopicKey = "topic_key"
	KeyTopicMsg = "topic_msg"
	KeyOptype   = "optype"
	KeyRCode    = "rcode"
	KeyResult   = "result"
	KeyHost     = "host"
	KeyIP       = "ip"
	KeyPort     = "port"
)

// Message is implemented by the six concrete kinds in this package and by
// nothing else.
type Message interface {
	ID() string
	SetID(id string)
	Kind() Kind
	Body() Body
	SetBody(body Body)
	Check() error
}

// NewID returns a fresh correlation id.
func NewID() string {
	return uuid.NewString()
}

// New returns an empty message of the given kind.
func New(kind Kind) (Message, error) {
	switch kind {
	case KindRPCRequest:
		return &RPCRequest{base: newBase()}, nil
	case KindRPCResponse:
		return &RPCResponse{base: newBase()}, nil
	case KindTopicRequest:
		return &TopicRequest{base: newBase()}, nil
	case KindTopicResponse:
		return &TopicResponse{base: newBase()}, nil
	case KindServiceRequest:
		return &ServiceRequest{base: newBase()}, nil
	case KindServiceResponse:
		return &ServiceResponse{base: newBase()}, nil
	}
	return nil, fmt.Errorf("message: unknown kind %d", int32(kind))
}

// IsRequest reports whether kind is one of the three request kinds.
func IsRequest(kind Kind) bool {
	return kind == KindRPCRequest || kind == KindTopicRequest || kind == KindServiceRequest
}

// FailureResponse builds the response matching req's kind with the given code
// and the request's id. It returns nil when req is itself a response.
func FailureResponse(req Message, code RCode) Message {
	var rsp Message
	switch r := req.(type) {
	case *RPCRequest:
		rsp = NewRPCResponse(code, nil)
	case *TopicRequest:
		rsp = NewTopicResponse(code)
	case *ServiceRequest:
		optype := OptypeUnknown
		if v, ok := r.Body().Int(KeyOptype); ok && ServiceOptype(v).Valid() {
			optype = ServiceOptype(v)
		}
		sr := NewServiceResponse(code, optype)
		if optype == OptypeDiscovery {
			if m, ok := r.Body().String(KeyMethod); ok {
				sr.SetMethod(m)
			}
		}
		rsp = sr
	default:
		return nil
	}
	rsp.SetID(req.ID())
	return rsp
}

type base struct {
	id   string
	body Body
}

func newBase() base {
	return base{body: Body{}}
}

func (b *base) ID() string      { return b.id }
func (b *base) SetID(id string) { b.id = id }
func (b *base) Body() Body      { return b.body }

func (b *base) SetBody(body Body) {
	if body == nil {
		body = Body{}
	}
	b.body = body
}

func invalid(kind Kind, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidMessage, kind, fmt.Sprintf(format, args...))
}
