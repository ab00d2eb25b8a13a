package message

import (
	"errors"
	"fmt"
)

// RCode is the result code carried by every response.
type RCode int

const (
	CodeOK RCode = iota
	CodeParseFailed
	CodeErrorMsgType
	CodeInvalidMsg
	CodeDisconnected
	CodeInvalidParams
	CodeNotFoundService
	CodeInvalidOptype
	CodeNotFoundTopic
	CodeInternalError
	CodeTimeout
	CodeRateLimited
)

var reasons = map[RCode]string{
	CodeOK:              "ok",
	CodeParseFailed:     "message parse failed",
	CodeErrorMsgType:    "wrong message type",
	CodeInvalidMsg:      "invalid message",
	CodeDisconnected:    "connection disconnected",
	CodeInvalidParams:   "invalid rpc parameters",
	CodeNotFoundService: "service not found",
	CodeInvalidOptype:   "invalid operation type",
	CodeNotFoundTopic:   "topic not found",
	CodeInternalError:   "internal error",
	CodeTimeout:         "request timed out",
	CodeRateLimited:     "rate limit exceeded",
}

func (c RCode) String() string {
	if r, ok := reasons[c]; ok {
		return r
	}
	return fmt.Sprintf("unknown rcode %d", int(c))
}

// CodeError reports a response that came back with a non-OK result code.
type CodeError struct {
	Code RCode
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("rcode %d: %s", int(e.Code), e.Code)
}

// CodeOf extracts the result code from err, CodeInternalError when err
// carries none and CodeOK when err is nil.
func CodeOf(err error) RCode {
	if err == nil {
		return CodeOK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return CodeInternalError
}

// ServiceOptype is the operation carried by service requests and responses.
type ServiceOptype int

const (
	OptypeRegistry ServiceOptype = iota
	OptypeDiscovery
	OptypeOnline
	OptypeOffline
	OptypeUnknown
)

func (o ServiceOptype) Valid() bool {
	return o >= OptypeRegistry && o <= OptypeUnknown
}

func (o ServiceOptype) String() string {
	switch o {
	case OptypeRegistry:
		return "registry"
	case OptypeDiscovery:
		return "discovery"
	case OptypeOnline:
		return "online"
	case OptypeOffline:
		return "offline"
	}
	return "unknown"
}

// TopicOptype is the operation carried by topic requests.
type TopicOptype int

const (
	TopicCreate TopicOptype = iota
	TopicRemove
	TopicSubscribe
	TopicCancel
	TopicPublish
)

func (o TopicOptype) Valid() bool {
	return o >= TopicCreate && o <= TopicPublish
}

func (o TopicOptype) String() string {
	switch o {
	case TopicCreate:
		return "create"
	case TopicRemove:
		return "remove"
	case TopicSubscribe:
		return "subscribe"
	case TopicCancel:
		return "cancel"
	case TopicPublish:
		return "publish"
	}
	return fmt.Sprintf("topic-optype(%d)", int(o))
}
