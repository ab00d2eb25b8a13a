package message

// RPCRequest asks the peer to run a method.
type RPCRequest struct{ base }

func NewRPCRequest(method string, params map[string]any) *RPCRequest {
	if params == nil {
		params = map[string]any{}
	}
	m := &RPCRequest{base: newBase()}
	m.id = NewID()
	m.body[KeyMethod] = method
	m.body[KeyParams] = params
	return m
}

func (m *RPCRequest) Kind() Kind { return KindRPCRequest }

func (m *RPCRequest) Method() string {
	s, _ := m.body.String(KeyMethod)
	return s
}

func (m *RPCRequest) Params() map[string]any {
	p, _ := m.body.Object(KeyParams)
	return p
}

func (m *RPCRequest) Check() error {
	if _, ok := m.body.String(KeyMethod); !ok {
		return invalid(m.Kind(), "missing or non-string method")
	}
	if _, ok := m.body.Object(KeyParams); !ok {
		return invalid(m.Kind(), "missing or non-object params")
	}
	return nil
}

// RPCResponse carries a method's result.
type RPCResponse struct{ base }

func NewRPCResponse(code RCode, result any) *RPCResponse {
	m := &RPCResponse{base: newBase()}
	m.body[KeyRCode] = int(code)
	if result != nil {
		m.body[KeyResult] = result
	}
	return m
}

func (m *RPCResponse) Kind() Kind { return KindRPCResponse }

func (m *RPCResponse) RCode() RCode {
	c, _ := m.body.Int(KeyRCode)
	return RCode(c)
}

func (m *RPCResponse) Result() any { return m.body[KeyResult] }

func (m *RPCResponse) Check() error {
	code, ok := m.body.Int(KeyRCode)
	if !ok {
		return invalid(m.Kind(), "missing or non-integer rcode")
	}
	if RCode(code) == CodeOK && !m.body.Has(KeyResult) {
		return invalid(m.Kind(), "missing result")
	}
	return nil
}

// TopicRequest operates on a topic; PUBLISH requests are also what
// subscribers receive.
type TopicRequest struct{ base }

func NewTopicRequest(key string, op TopicOptype, msg any) *TopicRequest {
	m := &TopicRequest{base: newBase()}
	m.id = NewID()
	m.body[KeyTopicKey] = key
	m.body[KeyOptype] = int(op)
	if op == TopicPublish {
		m.body[KeyTopicMsg] = msg
	}
	return m
}

func (m *TopicRequest) Kind() Kind { return KindTopicRequest }

func (m *TopicRequest) TopicKey() string {
	s, _ := m.body.String(KeyTopicKey)
	return s
}

func (m *TopicRequest) Optype() TopicOptype {
	o, _ := m.body.Int(KeyOptype)
	return TopicOptype(o)
}

func (m *TopicRequest) TopicMsg() any { return m.body[KeyTopicMsg] }

func (m *TopicRequest) Check() error {
	if _, ok := m.body.String(KeyTopicKey); !ok {
		return invalid(m.Kind(), "missing or non-string topic_key")
	}
	op, ok := m.body.Int(KeyOptype)
	if !ok {
		return invalid(m.Kind(), "missing or non-integer optype")
	}
	if TopicOptype(op) == TopicPublish && !m.body.Has(KeyTopicMsg) {
		return invalid(m.Kind(), "publish without topic_msg")
	}
	return nil
}

// TopicResponse acknowledges a topic request.
type TopicResponse struct{ base }

func NewTopicResponse(code RCode) *TopicResponse {
	m := &TopicResponse{base: newBase()}
	m.body[KeyRCode] = int(code)
	return m
}

func (m *TopicResponse) Kind() Kind { return KindTopicResponse }

func (m *TopicResponse) RCode() RCode {
	c, _ := m.body.Int(KeyRCode)
	return RCode(c)
}

func (m *TopicResponse) Check() error {
	if _, ok := m.body.Int(KeyRCode); !ok {
		return invalid(m.Kind(), "missing or non-integer rcode")
	}
	return nil
}

// ServiceRequest registers or discovers a method. The registry also uses it
// to push ONLINE and OFFLINE notices to discoverers.
type ServiceRequest struct{ base }

func NewServiceRequest(method string, op ServiceOptype, host *Address) *ServiceRequest {
	m := &ServiceRequest{base: newBase()}
	m.id = NewID()
	m.body[KeyMethod] = method
	m.body[KeyOptype] = int(op)
	if host != nil {
		m.body[KeyHost] = host.toBody()
	}
	return m
}

func (m *ServiceRequest) Kind() Kind { return KindServiceRequest }

func (m *ServiceRequest) Method() string {
	s, _ := m.body.String(KeyMethod)
	return s
}

func (m *ServiceRequest) Optype() ServiceOptype {
	o, _ := m.body.Int(KeyOptype)
	return ServiceOptype(o)
}

func (m *ServiceRequest) Host() Address {
	a, _ := addressFrom(m.body[KeyHost])
	return a
}

func (m *ServiceRequest) Check() error {
	if _, ok := m.body.String(KeyMethod); !ok {
		return invalid(m.Kind(), "missing or non-string method")
	}
	op, ok := m.body.Int(KeyOptype)
	if !ok {
		return invalid(m.Kind(), "missing or non-integer optype")
	}
	if ServiceOptype(op) != OptypeDiscovery {
		if _, ok := addressFrom(m.body[KeyHost]); !ok {
			return invalid(m.Kind(), "missing or malformed host")
		}
	}
	return nil
}

// ServiceResponse answers a service request.
type ServiceResponse struct{ base }

func NewServiceResponse(code RCode, op ServiceOptype) *ServiceResponse {
	m := &ServiceResponse{base: newBase()}
	m.body[KeyRCode] = int(code)
	m.body[KeyOptype] = int(op)
	if op == OptypeDiscovery {
		m.body[KeyHost] = []any{}
	}
	return m
}

func (m *ServiceResponse) Kind() Kind { return KindServiceResponse }

func (m *ServiceResponse) RCode() RCode {
	c, _ := m.body.Int(KeyRCode)
	return RCode(c)
}

func (m *ServiceResponse) Optype() ServiceOptype {
	o, _ := m.body.Int(KeyOptype)
	return ServiceOptype(o)
}

func (m *ServiceResponse) Method() string {
	s, _ := m.body.String(KeyMethod)
	return s
}

func (m *ServiceResponse) SetMethod(method string) { m.body[KeyMethod] = method }

func (m *ServiceResponse) SetHosts(hosts []Address) {
	arr := make([]any, 0, len(hosts))
	for _, h := range hosts {
		arr = append(arr, h.toBody())
	}
	m.body[KeyHost] = arr
}

// Hosts skips entries that are not well-formed addresses.
func (m *ServiceResponse) Hosts() []Address {
	arr, _ := m.body.Array(KeyHost)
	hosts := make([]Address, 0, len(arr))
	for _, v := range arr {
		if a, ok := addressFrom(v); ok {
			hosts = append(hosts, a)
		}
	}
	return hosts
}

func (m *ServiceResponse) Check() error {
	code, ok := m.body.Int(KeyRCode)
	if !ok {
		return invalid(m.Kind(), "missing or non-integer rcode")
	}
	op, ok := m.body.Int(KeyOptype)
	if !ok {
		return invalid(m.Kind(), "missing or non-integer optype")
	}
	if ServiceOptype(op) == OptypeDiscovery && RCode(code) == CodeOK {
		if _, ok := m.body.String(KeyMethod); !ok {
			return invalid(m.Kind(), "discovery response without method")
		}
		if _, ok := m.body.Array(KeyHost); !ok {
			return invalid(m.Kind(), "discovery response without host list")
		}
	}
	return nil
}
