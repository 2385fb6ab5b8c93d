package grpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/jeremy-quicklearner/clautod/internal/common"
	"github.com/jeremy-quicklearner/clautod/internal/netx"
	"github.com/jeremy-quicklearner/clautod/internal/server/dispatch"
)

func (s *GRPCServer) handle(ctx context.Context, route dispatch.Route, in *structpb.Struct) (*structpb.Struct, error) {
	params, err := paramsOf(in)
	if err != nil {
		return nil, toStatus(err)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.SessionTokenMetadataKey); len(values) > 0 {
			token = values[0]
		}
	}
	var addr string
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		addr = netx.Host(p.Addr.String())
	}

	resp, err := s.dispatcher.Call(ctx, route, dispatch.Request{
		Method: route.Method,
		Path:   route.Path,
		Params: params,
		Token:  token,
		Peer:   addr,
	})
	if err != nil {
		st := toStatus(err)
		if status.Code(st) == codes.Internal {
			s.logger.Error(ctx, "call failed", "method", route.Name, "error", err)
		}
		return nil, st
	}

	switch {
	case resp.ClearToken:
		_ = grpc.SetHeader(ctx, metadata.Pairs(common.SessionTokenMetadataKey, ""))
	case resp.Token != "":
		_ = grpc.SetHeader(ctx, metadata.Pairs(common.SessionTokenMetadataKey, resp.Token))
	}

	out, err := resultStruct(resp.Payload)
	if err != nil {
		s.logger.Error(ctx, "encode result", "method", route.Name, "error", err)
		return nil, status.Error(codes.Internal, common.ErrorInternal.Error())
	}
	return out, nil
}

// paramsOf flattens the request struct. Values must be strings, numbers or
// booleans.
func paramsOf(in *structpb.Struct) (map[string]string, error) {
	params := make(map[string]string, len(in.GetFields()))
	for k, v := range in.GetFields() {
		switch kind := v.GetKind().(type) {
		case *structpb.Value_StringValue:
			params[k] = kind.StringValue
		case *structpb.Value_NumberValue:
			params[k] = strconv.FormatFloat(kind.NumberValue, 'f', -1, 64)
		case *structpb.Value_BoolValue:
			params[k] = strconv.FormatBool(kind.BoolValue)
		default:
			return nil, fmt.Errorf("%w: parameter %q must be a string, number or boolean", common.ErrValidation, k)
		}
	}
	return params, nil
}

// resultStruct wraps payload as {"result": payload} through its JSON form.
func resultStruct(payload any) (*structpb.Struct, error) {
	b, err := json.Marshal(map[string]any{"result": payload})
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// toStatus maps an error to a gRPC status carrying the caller-safe message.
func toStatus(err error) error {
	var code codes.Code
	switch common.Classify(err) {
	case common.ErrValidation, common.ErrConstraintViolation:
		code = codes.InvalidArgument
	case common.ErrorUnauthorized, common.ErrInvalidCredentials:
		code = codes.Unauthenticated
	case common.ErrForbidden:
		code = codes.PermissionDenied
	case common.ErrMissingSubject, common.ErrNotFound:
		code = codes.NotFound
	case common.ErrIllegalOperation:
		code = codes.FailedPrecondition
	case common.ErrMethodNotAllowed:
		code = codes.Unimplemented
	case common.ErrRateLimited:
		code = codes.ResourceExhausted
	case common.ErrStorageUnavailable:
		code = codes.Unavailable
	default:
		code = codes.Internal
	}
	return status.Error(code, common.PublicMessage(err))
}
