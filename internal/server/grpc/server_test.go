package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/logging"
	"github.com/jeremy-quicklearner/clautod/internal/server/dispatch"
)

type fakeDispatcher struct {
	mu    sync.Mutex
	route dispatch.Route
	req   dispatch.Request
	calls int

	resp  dispatch.Response
	err   error
	panic bool
}

func (f *fakeDispatcher) Call(_ context.Context, route dispatch.Route, req dispatch.Request) (dispatch.Response, error) {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.route, f.req = route, req
	f.calls++
	return f.resp, f.err
}

func (f *fakeDispatcher) last() (dispatch.Route, dispatch.Request, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.route, f.req, f.calls
}

func dial(t *testing.T, d Dispatcher) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := NewGRPCServer("", logging.NewNop(), d)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, lis) }()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
		cancel()
		<-done
	})
	return conn
}

func mustStruct(t *testing.T, m map[string]any) *structpb.Struct {
	t.Helper()
	s, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return s
}

func TestCall_RoundTrip(t *testing.T) {
	f := &fakeDispatcher{resp: dispatch.Response{
		Payload: []dispatch.UserView{{Username: "bob", PrivilegeLevel: 1, Privilege: "read"}},
		Token:   "renewed",
	}}
	conn := dial(t, f)

	ctx := metadata.AppendToOutgoingContext(context.Background(), common.SessionTokenMetadataKey, "tok123")
	var header metadata.MD
	out := &structpb.Struct{}
	err := conn.Invoke(ctx, common.GRPCMethod(dispatch.UserGet),
		mustStruct(t, map[string]any{"username": "bob", "privilege_level": 1}), out, grpc.Header(&header))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	route, req, _ := f.last()
	if route.Name != dispatch.UserGet || req.Method != "GET" || req.Path != "/api/user" {
		t.Fatalf("wrong route: %+v %+v", route, req)
	}
	if req.Token != "tok123" {
		t.Fatalf("token not forwarded: %q", req.Token)
	}
	if req.Params["username"] != "bob" || req.Params["privilege_level"] != "1" || len(req.Params) != 2 {
		t.Fatalf("params mismatch: %v", req.Params)
	}

	if got := header.Get(common.SessionTokenMetadataKey); len(got) != 1 || got[0] != "renewed" {
		t.Fatalf("renewed token not in header: %v", got)
	}

	users := out.AsMap()["result"].([]any)
	if len(users) != 1 || users[0].(map[string]any)["username"] != "bob" {
		t.Fatalf("unexpected result: %v", out.AsMap())
	}
}

func TestCall_ClearToken(t *testing.T) {
	f := &fakeDispatcher{resp: dispatch.Response{Payload: dispatch.SessionView{}, ClearToken: true}}
	conn := dial(t, f)

	var header metadata.MD
	err := conn.Invoke(context.Background(), common.GRPCMethod(dispatch.SessionLogout), &structpb.Struct{}, &structpb.Struct{}, grpc.Header(&header))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if got := header.Get(common.SessionTokenMetadataKey); len(got) != 1 || got[0] != "" {
		t.Fatalf("expected an empty session token header, got %v", got)
	}
}

func TestCall_ErrorCodes(t *testing.T) {
	tests := []struct {
		err  error
		code codes.Code
		msg  string
	}{
		{err: fmt.Errorf("%w: missing parameter", common.ErrValidation), code: codes.InvalidArgument, msg: "validation error: missing parameter"},
		{err: common.ErrorUnauthorized, code: codes.Unauthenticated, msg: "unauthorized"},
		{err: common.ErrInvalidCredentials, code: codes.Unauthenticated, msg: "invalid credentials"},
		{err: common.ErrForbidden, code: codes.PermissionDenied, msg: "forbidden"},
		{err: fmt.Errorf("%w: user <x>", common.ErrMissingSubject), code: codes.NotFound, msg: "no such subject: user <x>"},
		{err: fmt.Errorf("%w: <admin> cannot be deleted", common.ErrIllegalOperation), code: codes.FailedPrecondition, msg: "illegal operation: <admin> cannot be deleted"},
		{err: common.ErrStorageUnavailable, code: codes.Unavailable, msg: "storage unavailable"},
		{err: errors.New("disk on fire"), code: codes.Internal, msg: "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			conn := dial(t, &fakeDispatcher{err: tt.err})
			err := conn.Invoke(context.Background(), common.GRPCMethod(dispatch.UserDelete), &structpb.Struct{}, &structpb.Struct{})
			st, ok := status.FromError(err)
			if !ok {
				t.Fatalf("expected status error, got %v", err)
			}
			if st.Code() != tt.code || st.Message() != tt.msg {
				t.Fatalf("got %v %q, want %v %q", st.Code(), st.Message(), tt.code, tt.msg)
			}
		})
	}
}

func TestCall_RejectsNestedParams(t *testing.T) {
	f := &fakeDispatcher{}
	conn := dial(t, f)

	in := mustStruct(t, map[string]any{"username": map[string]any{"x": "y"}})
	err := conn.Invoke(context.Background(), common.GRPCMethod(dispatch.UserGet), in, &structpb.Struct{})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if _, _, calls := f.last(); calls != 0 {
		t.Fatalf("dispatcher should not be called")
	}
}

func TestCall_PanicAndUnknownMethod(t *testing.T) {
	conn := dial(t, &fakeDispatcher{panic: true})

	err := conn.Invoke(context.Background(), common.GRPCMethod(dispatch.UserGet), &structpb.Struct{}, &structpb.Struct{})
	if status.Code(err) != codes.Internal {
		t.Fatalf("expected Internal after panic, got %v", err)
	}

	err = conn.Invoke(context.Background(), common.GRPCMethod("UserRename"), &structpb.Struct{}, &structpb.Struct{})
	if status.Code(err) != codes.Unimplemented {
		t.Fatalf("expected Unimplemented, got %v", err)
	}
}

func TestServiceDesc_HasEveryRoute(t *testing.T) {
	desc := ServiceDesc()
	if desc.ServiceName != "clautod.v1.Clautod" {
		t.Fatalf("service name %q", desc.ServiceName)
	}
	names := map[string]bool{}
	for _, m := range desc.Methods {
		names[m.MethodName] = true
	}
	for _, r := range dispatch.Routes() {
		if !names[r.Name] {
			t.Fatalf("route %s has no method", r.Name)
		}
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:0", logging.NewNop(), &fakeDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- srv.Run(ctx)
	}()

	select {
	case err := <-done:
		t.Fatalf("server exited too early: %v", err)
	case <-time.After(150 * time.Millisecond):
	}

	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error on graceful stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop within timeout after context cancel")
	}
}

func TestRun_ReturnsErrorOnBadAddress(t *testing.T) {
	t.Parallel()

	srv := NewGRPCServer("127.0.0.1:99999", logging.NewNop(), &fakeDispatcher{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Run(ctx); err == nil {
		t.Fatal("expected error from Run on bad address, got nil")
	}
}
