package grpcauth

import (
	"context"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"gatekit.org/auth"
)

type stubAuthorizer struct {
	wantToken string
	decision  auth.AccessDecision
	err       error
}

func (s *stubAuthorizer) AuthorizeRequest(ctx context.Context, tokenString, permission string) (auth.AccessDecision, error) {
	if s.err != nil {
		return s.decision, s.err
	}
	if tokenString != s.wantToken {
		return auth.AccessDecision{}, auth.ErrTokenBadSignature
	}
	return s.decision, nil
}

func permissionFor(perm string) PermissionFunc {
	return func(string) string { return perm }
}

func bearerContext(token string) context.Context {
	md := metadata.Pairs("authorization", "Bearer "+token)
	return metadata.NewIncomingContext(context.Background(), md)
}

func unaryInfo() *grpc.UnaryServerInfo {
	return &grpc.UnaryServerInfo{FullMethod: "/gatekit.Articles/Write"}
}

func TestUnaryInterceptorAllows(t *testing.T) {
	stub := &stubAuthorizer{
		wantToken: "good-token",
		decision: auth.AccessDecision{
			Allowed: true,
			Subject: auth.Subject{PrincipalID: "u1"},
		},
	}
	interceptor := UnaryInterceptor(stub, permissionFor("articles.write"))

	called := false
	resp, err := interceptor(bearerContext("good-token"), "req", unaryInfo(), func(ctx context.Context, req any) (any, error) {
		called = true
		sub, ok := auth.SubjectFromContext(ctx)
		if !ok || sub.PrincipalID != "u1" {
			t.Fatalf("subject not attached: %+v ok=%v", sub, ok)
		}
		return "resp", nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
	if !called || resp != "resp" {
		t.Fatalf("handler not dispatched: called=%v resp=%v", called, resp)
	}
}

func TestUnaryInterceptorUnguardedMethod(t *testing.T) {
	interceptor := UnaryInterceptor(&stubAuthorizer{}, permissionFor(""))
	_, err := interceptor(context.Background(), "req", unaryInfo(), func(ctx context.Context, req any) (any, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("unguarded method must pass: %v", err)
	}
}

func TestUnaryInterceptorMissingMetadata(t *testing.T) {
	interceptor := UnaryInterceptor(&stubAuthorizer{}, permissionFor("articles.write"))
	_, err := interceptor(context.Background(), "req", unaryInfo(), func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryInterceptorBadToken(t *testing.T) {
	stub := &stubAuthorizer{wantToken: "good-token"}
	interceptor := UnaryInterceptor(stub, permissionFor("articles.write"))
	_, err := interceptor(bearerContext("forged"), "req", unaryInfo(), func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
}

func TestUnaryInterceptorExpiredToken(t *testing.T) {
	stub := &stubAuthorizer{err: auth.ErrTokenExpired}
	interceptor := UnaryInterceptor(stub, permissionFor("articles.write"))
	_, err := interceptor(bearerContext("stale"), "req", unaryInfo(), func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != "token expired" {
		t.Fatalf("expected Unauthenticated token expired, got %v", err)
	}
}

func TestUnaryInterceptorDenied(t *testing.T) {
	stub := &stubAuthorizer{
		wantToken: "good-token",
		decision:  auth.AccessDecision{Reason: auth.DenyInsufficientRole},
	}
	interceptor := UnaryInterceptor(stub, permissionFor("articles.delete"))
	_, err := interceptor(bearerContext("good-token"), "req", unaryInfo(), func(ctx context.Context, req any) (any, error) {
		t.Fatal("handler must not run")
		return nil, nil
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (f *fakeServerStream) Context() context.Context { return f.ctx }

func TestStreamInterceptorAllows(t *testing.T) {
	stub := &stubAuthorizer{
		wantToken: "good-token",
		decision: auth.AccessDecision{
			Allowed: true,
			Subject: auth.Subject{PrincipalID: "u1"},
		},
	}
	interceptor := StreamInterceptor(stub, permissionFor("articles.watch"))

	stream := &fakeServerStream{ctx: bearerContext("good-token")}
	info := &grpc.StreamServerInfo{FullMethod: "/gatekit.Articles/Watch"}
	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		sub, ok := auth.SubjectFromContext(ss.Context())
		if !ok || sub.PrincipalID != "u1" {
			t.Fatalf("subject not attached to stream context: %+v ok=%v", sub, ok)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("interceptor: %v", err)
	}
}

func TestStreamInterceptorDenied(t *testing.T) {
	stub := &stubAuthorizer{
		wantToken: "good-token",
		decision:  auth.AccessDecision{Reason: auth.DenyInsufficientRole},
	}
	interceptor := StreamInterceptor(stub, permissionFor("articles.watch"))

	stream := &fakeServerStream{ctx: bearerContext("good-token")}
	info := &grpc.StreamServerInfo{FullMethod: "/gatekit.Articles/Watch"}
	err := interceptor(nil, stream, info, func(srv any, ss grpc.ServerStream) error {
		t.Fatal("handler must not run")
		return nil
	})
	if status.Code(err) != codes.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestBearerFromMetadata(t *testing.T) {
	cases := []struct {
		name string
		md   metadata.MD
		want string
		ok   bool
	}{
		{"valid", metadata.Pairs("authorization", "Bearer abc"), "abc", true},
		{"missing", metadata.MD{}, "", false},
		{"wrong scheme", metadata.Pairs("authorization", "Basic abc"), "", false},
		{"empty token", metadata.Pairs("authorization", "Bearer "), "", false},
	}
	for _, tc := range cases {
		got, err := bearerFromMetadata(tc.md)
		if tc.ok && (err != nil || got != tc.want) {
			t.Fatalf("%s: got %q, %v", tc.name, got, err)
		}
		if !tc.ok && err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}
