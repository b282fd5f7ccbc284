package ytrpc

// Service is a named group of typed handlers, the Go analogue of the
// source's RpcService: a user populates one via RegisterFunc, then hands it
// to Server.RegisterService.
type Service struct {
	funcs map[string]HandlerFunc
}

// NewService returns an empty Service.
func NewService() *Service {
	return &Service{funcs: make(map[string]HandlerFunc)}
}

// RegisterFunc installs a typed handler under funcName on svc, generating
// the request-unmarshal/response-marshal glue a raw HandlerFunc needs. It
// is the Go analogue of the source's RpcService::RegisterRpcServiceFunc,
// which does the same via a protobuf-generated descriptor; here the caller
// supplies the (un)marshal functions directly since there is no codegen
// step.
//
// Registering the same funcName twice on the same Service panics, since
// that always indicates a programming error local to one registration call
// site (cross-Service collisions are instead reported by
// Server.RegisterService, since only the server knows the full set).
func RegisterFunc[Req any, Rsp any](
	svc *Service,
	funcName string,
	fn func(ctx *Context, req *Req) (Status, *Rsp),
	newReq func() *Req,
	unmarshal func(*Req, []byte) error,
	marshal func(*Rsp) ([]byte, error),
) {
	if _, exists := svc.funcs[funcName]; exists {
		panic("ytrpc: duplicate function registration: " + funcName)
	}
	svc.funcs[funcName] = func(ctx *Context, reqPayload []byte) (Status, []byte) {
		req := newReq()
		if err := unmarshal(req, reqPayload); err != nil {
			return NewCodeStatus(SvrParseReqFailed), nil
		}

		status, rsp := fn(ctx, req)
		if rsp == nil {
			return status, nil
		}
		rspBytes, err := marshal(rsp)
		if err != nil {
			return NewCodeStatus(SvrSerializeRspFailed), nil
		}
		return status, rspBytes
	}
}

// mergeInto copies svc's handlers into handlers, failing if any funcName is
// already present.
func (svc *Service) mergeInto(handlers map[string]HandlerFunc) error {
	for name, h := range svc.funcs {
		if _, exists := handlers[name]; exists {
			return ErrDuplicateFunc
		}
		handlers[name] = h
	}
	return nil
}

// ServiceClient wraps a Client with typed marshal/unmarshal for one remote
// function, the Go analogue of the source's RpcServiceProxy. Invoke's raw
// core returns bytes; parsing failures here surface as CliParseRspFailed,
// matching spec.md §4.3 step 6.
type ServiceClient[Req any, Rsp any] struct {
	client    *Client
	funcName  string
	marshal   func(*Req) ([]byte, error)
	unmarshal func([]byte) (*Rsp, error)
}

// NewServiceClient returns a ServiceClient bound to funcName on client.
func NewServiceClient[Req any, Rsp any](
	client *Client,
	funcName string,
	marshal func(*Req) ([]byte, error),
	unmarshal func([]byte) (*Rsp, error),
) *ServiceClient[Req, Rsp] {
	return &ServiceClient[Req, Rsp]{client: client, funcName: funcName, marshal: marshal, unmarshal: unmarshal}
}

// Invoke marshals req, calls the remote function, and unmarshals the
// response payload.
func (sc *ServiceClient[Req, Rsp]) Invoke(ctx *Context, req *Req) (Status, *Rsp, error) {
	reqBytes, err := sc.marshal(req)
	if err != nil {
		return NewCodeStatus(CliSerializeReqFailed), nil, err
	}

	status, rspBytes, err := sc.client.Invoke(ctx, sc.funcName, reqBytes)
	if err != nil {
		return status, nil, err
	}
	if !status.OK() {
		return status, nil, nil
	}

	rsp, uerr := sc.unmarshal(rspBytes)
	if uerr != nil {
		return NewCodeStatus(CliParseRspFailed), nil, uerr
	}
	return status, rsp, nil
}
