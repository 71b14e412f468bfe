// Package grpcmw adapts the resilience layer to gRPC clients. The unary
// interceptor classifies status codes the same way the HTTP transport
// classifies responses, so retry and breaker decisions work identically for
// both transports.
package grpcmw

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/vietddude/custodian/resilience"
)

// CategoryForCode maps a gRPC status code to a failure category.
func CategoryForCode(code codes.Code) resilience.Category {
	switch code {
	case codes.Unavailable:
		return resilience.CategoryConnection
	case codes.DeadlineExceeded:
		return resilience.CategoryTimeout
	case codes.ResourceExhausted:
		return resilience.CategoryRateLimit
	case codes.Internal, codes.Unknown, codes.Aborted, codes.DataLoss:
		return resilience.CategoryServer
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return resilience.CategoryValidation
	case codes.Unauthenticated, codes.PermissionDenied:
		return resilience.CategoryAuth
	case codes.NotFound:
		return resilience.CategoryNotFound
	default:
		return resilience.CategoryOther
	}
}

// classifyRPC converts a gRPC call error into a classified failure. The
// original error stays reachable through Unwrap so status.FromError keeps
// working for callers.
func classifyRPC(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return resilience.Classify(err)
	}
	return &resilience.Error{
		Category: CategoryForCode(st.Code()),
		Code:     st.Code().String(),
		Message:  st.Message(),
		Err:      err,
	}
}

// UnaryClientInterceptor runs every unary call through g.
func UnaryClientInterceptor(g *resilience.Guard) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		_, err := g.Do(ctx, func(ctx context.Context) (any, error) {
			if err := invoker(ctx, method, req, reply, cc, opts...); err != nil {
				return nil, classifyRPC(err)
			}
			return nil, nil
		})
		return err
	}
}

// Dial opens a client connection whose unary calls run through g. Endpoints
// with an https scheme or a :443 suffix use TLS.
func Dial(ctx context.Context, endpoint string, g *resilience.Guard) (*grpc.ClientConn, error) {
	target := endpoint
	var opts []grpc.DialOption

	if strings.HasPrefix(endpoint, "https://") || strings.HasSuffix(endpoint, ":443") {
		creds := credentials.NewTLS(&tls.Config{})
		opts = append(opts, grpc.WithTransportCredentials(creds))
		target = strings.TrimPrefix(target, "https://")
	} else {
		opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
		target = strings.TrimPrefix(target, "http://")
	}

	opts = append(opts,
		grpc.WithBlock(), // Wait for connection
		grpc.WithUnaryInterceptor(UnaryClientInterceptor(g)),
	)

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.DialContext(dialCtx, target, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial grpc endpoint %s: %w", target, err)
	}
	return conn, nil
}
