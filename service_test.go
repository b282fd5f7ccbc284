package ytrpc

import (
	"errors"
	"testing"
	"time"
)

type addReq struct{ A, B int32 }
type addRsp struct{ Sum int32 }

func marshalAddReq(r *addReq) ([]byte, error) {
	return []byte{byte(r.A), byte(r.B)}, nil
}
func unmarshalAddReq(r *addReq, b []byte) error {
	if len(b) != 2 {
		return errors.New("bad length")
	}
	r.A, r.B = int32(b[0]), int32(b[1])
	return nil
}
func marshalAddRsp(r *addRsp) ([]byte, error) {
	return []byte{byte(r.Sum)}, nil
}
func unmarshalAddRsp(b []byte) (*addRsp, error) {
	if len(b) != 1 {
		return nil, errors.New("bad length")
	}
	return &addRsp{Sum: int32(b[0])}, nil
}

func TestServiceRoundTrip(t *testing.T) {
	svc := NewService()
	RegisterFunc(svc, "Add",
		func(ctx *Context, req *addReq) (Status, *addRsp) {
			return NewStatus(0, ""), &addRsp{Sum: req.A + req.B}
		},
		func() *addReq { return &addReq{} },
		unmarshalAddReq,
		marshalAddRsp,
	)

	srv := NewServer(ServerConfig{ListenAddr: freeListenAddr(t)})
	if err := srv.RegisterService(svc); err != nil {
		t.Fatalf("TestServiceRoundTrip: RegisterService: %v", err)
	}
	if err := srv.Start(); err != nil {
		t.Fatalf("TestServiceRoundTrip: Start: %v", err)
	}
	defer srv.Stop()

	c := NewClient(ClientConfig{ServerEndpoint: srv.listener.Addr().String()})
	defer c.Stop()
	stub := NewServiceClient[addReq, addRsp](c, "Add", marshalAddReq, unmarshalAddRsp)

	ctx := NewContext()
	ctx.SetTimeout(2 * time.Second)
	status, rsp, err := stub.Invoke(ctx, &addReq{A: 2, B: 3})
	if err != nil {
		t.Fatalf("TestServiceRoundTrip: unexpected error: %v", err)
	}
	if !status.OK() {
		t.Fatalf("TestServiceRoundTrip: status not OK: %s", status)
	}
	if rsp.Sum != 5 {
		t.Errorf("TestServiceRoundTrip: got sum %d, want 5", rsp.Sum)
	}
}

func TestServiceDuplicateRegistrationPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("TestServiceDuplicateRegistrationPanics: expected panic")
		}
	}()

	svc := NewService()
	reg := func() {
		RegisterFunc(svc, "Add",
			func(ctx *Context, req *addReq) (Status, *addRsp) { return NewStatus(0, ""), &addRsp{} },
			func() *addReq { return &addReq{} },
			unmarshalAddReq,
			marshalAddRsp,
		)
	}
	reg()
	reg()
}

func TestServerRegisterServiceCrossCollision(t *testing.T) {
	svcA := NewService()
	RegisterFunc(svcA, "Add",
		func(ctx *Context, req *addReq) (Status, *addRsp) { return NewStatus(0, ""), &addRsp{} },
		func() *addReq { return &addReq{} },
		unmarshalAddReq,
		marshalAddRsp,
	)
	svcB := NewService()
	RegisterFunc(svcB, "Add",
		func(ctx *Context, req *addReq) (Status, *addRsp) { return NewStatus(0, ""), &addRsp{} },
		func() *addReq { return &addReq{} },
		unmarshalAddReq,
		marshalAddRsp,
	)

	srv := NewServer(ServerConfig{ListenAddr: freeListenAddr(t)})
	if err := srv.RegisterService(svcA); err != nil {
		t.Fatalf("TestServerRegisterServiceCrossCollision: first RegisterService: %v", err)
	}
	if err := srv.RegisterService(svcB); err != ErrDuplicateFunc {
		t.Errorf("TestServerRegisterServiceCrossCollision: got %v, want %v", err, ErrDuplicateFunc)
	}
}
