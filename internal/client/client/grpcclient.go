package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/filex"
)

const (
	methodSessionLogin  = "SessionLogin"
	methodSessionInfo   = "SessionInfo"
	methodSessionRenew  = "SessionRenew"
	methodSessionLogout = "SessionLogout"
	methodUserGet       = "UserGet"
	methodUserAdd       = "UserAdd"
	methodUserSet       = "UserSet"
	methodUserDelete    = "UserDelete"
	methodUserPassword  = "UserPassword"
)

// Options configures a GRPCClient.
type Options struct {
	Addr string
	// CACert switches the connection to TLS verified against this file.
	CACert string
	// TokenFile mirrors the session token on disk when set.
	TokenFile string
	// DialOptions are appended after the defaults.
	DialOptions []grpc.DialOption
}

type GRPCClient struct {
	conn      *grpc.ClientConn
	tokenFile string

	mu    sync.Mutex
	token string
}

var _ Client = (*GRPCClient)(nil)

func withSessionToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.SessionTokenMetadataKey, token)
	return metadata.NewOutgoingContext(ctx, md)
}

// sessionInterceptor attaches the stored token and picks up the one the
// server hands back.
func (s *GRPCClient) sessionInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if token := s.Token(); token != "" {
		ctx = withSessionToken(ctx, token)
	}

	var header metadata.MD
	opts = append(opts, grpc.Header(&header))

	err := invoker(ctx, method, req, reply, cc, opts...)

	if values := header.Get(common.SessionTokenMetadataKey); len(values) > 0 {
		if serr := s.setToken(values[0]); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}

func NewGRPCClient(opts Options) (*GRPCClient, error) {
	c := &GRPCClient{tokenFile: opts.TokenFile}

	if c.tokenFile != "" {
		token, err := filex.ReadTrimmed(c.tokenFile)
		if err != nil {
			return nil, err
		}
		c.token = token
	}

	creds := insecure.NewCredentials()
	if opts.CACert != "" {
		tlsCreds, err := credentials.NewClientTLSFromFile(opts.CACert, "")
		if err != nil {
			return nil, fmt.Errorf("load CA certificate: %w", err)
		}
		creds = tlsCreds
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithUnaryInterceptor(c.sessionInterceptor),
	}, opts.DialOptions...)

	conn, err := grpc.NewClient(opts.Addr, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

func (s *GRPCClient) LoggedIn() bool {
	return s.Token() != ""
}

func (s *GRPCClient) setToken(token string) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if s.tokenFile == "" {
		return nil
	}
	if token == "" {
		return filex.Remove(s.tokenFile)
	}
	if err := filex.WritePrivate(s.tokenFile, []byte(token+"\n")); err != nil {
		return fmt.Errorf("save session token: %w", err)
	}
	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) invoke(ctx context.Context, method string, params map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	out := &structpb.Struct{}
	if err := s.conn.Invoke(ctx, common.GRPCMethod(method), in, out); err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

// Call sends params to the named method and returns the decoded result.
func (s *GRPCClient) Call(ctx context.Context, method string, params map[string]any) (any, error) {
	out, err := s.invoke(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return out.AsMap()["result"], nil
}

func call[T any](ctx context.Context, s *GRPCClient, method string, params map[string]any) (T, error) {
	var envelope struct {
		Result T `json:"result"`
	}
	out, err := s.invoke(ctx, method, params)
	if err != nil {
		return envelope.Result, err
	}
	data, err := protojson.Marshal(out)
	if err != nil {
		return envelope.Result, fmt.Errorf("encode %s result: %w", method, err)
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return envelope.Result, fmt.Errorf("decode %s result: %w", method, err)
	}
	return envelope.Result, nil
}

func (s *GRPCClient) Login(ctx context.Context, username, password string) (Session, error) {
	return call[Session](ctx, s, methodSessionLogin, map[string]any{
		"username": username,
		"password": password,
	})
}

// Logout revokes the session. A token the server already rejects is dropped
// locally as well.
func (s *GRPCClient) Logout(ctx context.Context) error {
	_, err := s.invoke(ctx, methodSessionLogout, nil)
	if err == nil || !errors.Is(err, ErrUnauthorized) {
		return err
	}
	if rerr := s.setToken(""); rerr != nil {
		return rerr
	}
	return err
}

func (s *GRPCClient) Session(ctx context.Context) (Session, error) {
	return call[Session](ctx, s, methodSessionInfo, nil)
}

func (s *GRPCClient) Renew(ctx context.Context) (Session, error) {
	return call[Session](ctx, s, methodSessionRenew, nil)
}

func (s *GRPCClient) Users(ctx context.Context, filter Filter) ([]User, error) {
	return call[[]User](ctx, s, methodUserGet, filter.params())
}

func (s *GRPCClient) AddUser(ctx context.Context, username, level, password string) (User, error) {
	return call[User](ctx, s, methodUserAdd, map[string]any{
		"username":        username,
		"privilege_level": level,
		"password":        password,
	})
}

func (s *GRPCClient) SetUsers(ctx context.Context, filter Filter, update Update) (int64, error) {
	p := filter.params()
	update.addTo(p)
	c, err := call[count](ctx, s, methodUserSet, p)
	return c.Affected, err
}

func (s *GRPCClient) DeleteUsers(ctx context.Context, filter Filter) (int64, error) {
	c, err := call[count](ctx, s, methodUserDelete, filter.params())
	return c.Affected, err
}

func (s *GRPCClient) ChangePassword(ctx context.Context, current, next string) error {
	_, err := s.invoke(ctx, methodUserPassword, map[string]any{
		"password":     current,
		"new_password": next,
	})
	return err
}
