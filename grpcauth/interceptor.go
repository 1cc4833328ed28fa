// Package grpcauth adapts the auth core to gRPC servers: interceptors read
// the authorization metadata, run the access decision and attach the
// authenticated subject to the handler context.
package grpcauth

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"gatekit.org/auth"
)

// Authorizer is the slice of the auth service the interceptors need.
type Authorizer interface {
	AuthorizeRequest(ctx context.Context, tokenString, permission string) (auth.AccessDecision, error)
}

// PermissionFunc resolves the permission guarding a full gRPC method name
// (e.g. "/gatekit.Ledger/Transfer"). Returning "" lets the call through
// unauthenticated.
type PermissionFunc func(fullMethod string) string

// UnaryInterceptor authenticates unary calls before dispatch.
func UnaryInterceptor(svc Authorizer, permissionFor PermissionFunc) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ctx, err := authenticate(ctx, svc, permissionFor, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor authenticates streaming calls before dispatch.
func StreamInterceptor(svc Authorizer, permissionFor PermissionFunc) grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), svc, permissionFor, info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, svc Authorizer, permissionFor PermissionFunc, fullMethod string) (context.Context, error) {
	perm := ""
	if permissionFor != nil {
		perm = permissionFor(fullMethod)
	}
	if perm == "" {
		return ctx, nil
	}

	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	token, err := bearerFromMetadata(md)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, err.Error())
	}

	decision, err := svc.AuthorizeRequest(ctx, token, perm)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}
	if !decision.Allowed {
		return nil, status.Errorf(codes.PermissionDenied, "permission denied: %s", decision.Reason)
	}

	ctx = auth.ContextWithSubject(ctx, decision.Subject)
	ctx = auth.ContextWithToken(ctx, token)
	return ctx, nil
}

func bearerFromMetadata(md metadata.MD) (string, error) {
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", errors.New("missing authorization metadata")
	}
	header := values[0]
	if !strings.HasPrefix(header, "Bearer ") {
		return "", errors.New("invalid authorization header format")
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

// wrappedServerStream overrides the stream context with the authenticated one.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
