package client

import (
	"context"
	"mini-jsonrpc/message"
	"mini-jsonrpc/transport"
)

// Provider announces methods to the registry.
type Provider struct {
	requestor *Requestor
}

func NewProvider(r *Requestor) *Provider {
	return &Provider{requestor: r}
}

// RegistryMethod tells the registry that host serves method.
func (p *Provider) RegistryMethod(ctx context.Context, conn transport.Conn, method string, host message.Address) error {
	rsp, err := p.requestor.Send(ctx, conn, message.NewServiceRequest(method, message.OptypeRegistry, &host))
	if err != nil {
		return err
	}
	sr, ok := rsp.(*message.ServiceResponse)
	if !ok {
		return ErrUnexpectedResponse
	}
	if sr.RCode() != message.CodeOK {
		return &message.CodeError{Code: sr.RCode()}
	}
	return nil
}
