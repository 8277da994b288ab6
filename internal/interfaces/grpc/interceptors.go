// Package grpc serves the authcore gRPC endpoint: the standard health service plus the
// interceptor chain that gives every other service a verified TenantContext.
package grpc

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"google.golang.org/grpc"
	grpcCodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	appService "github.com/turtacn/authcore/internal/application/service"
	"github.com/turtacn/authcore/internal/domain/models"
	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/constants"
	"github.com/turtacn/authcore/pkg/errors"
	"github.com/turtacn/authcore/pkg/logger"
)

// TenantResolver derives a TenantContext from a bearer token.
type TenantResolver interface {
	ContextFromToken(ctx context.Context, token string) (*models.TenantContext, error)
}

var _ TenantResolver = (*appService.TenantAuthorizer)(nil)

type tenantContextKey struct{}

// TenantContextFrom returns the TenantContext stored by the auth interceptor.
func TenantContextFrom(ctx context.Context) (*models.TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey{}).(*models.TenantContext)
	return tc, ok
}

// InterceptorChain builds the unary interceptors.
type InterceptorChain struct {
	log         logger.Logger
	resolver    TenantResolver
	rateLimiter service.RateLimiter
	// public lists full method names served without authentication.
	public map[string]bool
}

// NewInterceptorChain creates the chain. rateLimiter may be nil.
func NewInterceptorChain(log logger.Logger, resolver TenantResolver, rateLimiter service.RateLimiter) *InterceptorChain {
	return &InterceptorChain{
		log:         log.WithComponent("grpc"),
		resolver:    resolver,
		rateLimiter: rateLimiter,
		public: map[string]bool{
			grpc_health_v1.Health_Check_FullMethodName: true,
			grpc_health_v1.Health_Watch_FullMethodName: true,
		},
	}
}

// UnaryRecoveryInterceptor converts handler panics into Internal errors.
func (ic *InterceptorChain) UnaryRecoveryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				ic.log.Error(ctx, "gRPC handler panic recovered", fmt.Errorf("%v", r),
					logger.String("method", info.FullMethod),
				)
				err = status.Error(grpcCodes.Internal, "internal server error")
			}
		}()

		return handler(ctx, req)
	}
}

// UnaryLoggingInterceptor logs one line per completed call.
func (ic *InterceptorChain) UnaryLoggingInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		ic.log.Info(ctx, "gRPC request completed",
			logger.String("method", info.FullMethod),
			logger.String("client_ip", clientIP(ctx)),
			logger.Duration("latency", time.Since(start)),
			logger.String("status", status.Code(err).String()),
		)
		return resp, err
	}
}

// UnaryRateLimitInterceptor applies the per-IP budget. Limiter failures let the call through.
func (ic *InterceptorChain) UnaryRateLimitInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if ic.rateLimiter == nil || ic.public[info.FullMethod] {
			return handler(ctx, req)
		}
		ip := clientIP(ctx)
		result, err := ic.rateLimiter.Allow(ctx, constants.RateLimitScopeIP, ip)
		if err != nil {
			ic.log.Warn(ctx, "rate limiter unavailable, allowing request",
				logger.String("method", info.FullMethod), logger.Err(err))
			return handler(ctx, req)
		}
		if !result.Allowed {
			ic.log.Warn(ctx, "rate limit exceeded",
				logger.String("client_ip", ip), logger.String("method", info.FullMethod))
			return nil, toStatus(errors.ErrRateLimitExceeded(string(constants.RateLimitScopeIP), int(result.Limit), result.RetryAfter))
		}
		return handler(ctx, req)
	}
}

// UnaryAuthInterceptor reads "authorization: Bearer <jwt>" metadata and stores the
// derived TenantContext in the call context. Health methods are exempt.
func (ic *InterceptorChain) UnaryAuthInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if ic.public[info.FullMethod] {
			return handler(ctx, req)
		}

		token := bearerFromMetadata(ctx)
		if token == "" {
			return nil, status.Error(grpcCodes.Unauthenticated, "missing bearer token")
		}
		tc, err := ic.resolver.ContextFromToken(ctx, token)
		if err != nil {
			if errors.ShouldLogError(err) {
				ic.log.Error(ctx, "tenant context resolution failed", err, logger.String("method", info.FullMethod))
			}
			return nil, toStatus(err)
		}
		return handler(context.WithValue(ctx, tenantContextKey{}, tc), req)
	}
}

// UnaryErrorInterceptor converts AuthErrors returned by handlers into gRPC statuses.
func (ic *InterceptorChain) UnaryErrorInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return resp, toStatus(err)
	}
}

// ChainUnaryInterceptors orders the chain: recovery, logging, rate limit, auth, errors.
func (ic *InterceptorChain) ChainUnaryInterceptors() grpc.ServerOption {
	return grpc.ChainUnaryInterceptor(
		ic.UnaryRecoveryInterceptor(),
		ic.UnaryLoggingInterceptor(),
		ic.UnaryRateLimitInterceptor(),
		ic.UnaryAuthInterceptor(),
		ic.UnaryErrorInterceptor(),
	)
}

// toStatus maps an error onto a gRPC status. Only the public description crosses the wire.
func toStatus(err error) error {
	authErr, ok := errors.AsAuthError(err)
	if !ok {
		return status.Error(grpcCodes.Internal, "internal server error")
	}

	var code grpcCodes.Code
	switch authErr.HTTPStatus() {
	case 400:
		code = grpcCodes.InvalidArgument
	case 401:
		code = grpcCodes.Unauthenticated
	case 403:
		code = grpcCodes.PermissionDenied
	case 404:
		code = grpcCodes.NotFound
	case 409:
		code = grpcCodes.AlreadyExists
	case 429:
		code = grpcCodes.ResourceExhausted
	case 503:
		code = grpcCodes.Unavailable
	default:
		return status.Error(grpcCodes.Internal, "internal server error")
	}
	_, body := errors.ToErrorResponse(authErr)
	return status.Errorf(code, "%s: %s", body.Error, body.ErrorDescription)
}

func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	for _, v := range md.Get("authorization") {
		scheme, token, ok := strings.Cut(v, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}
	return ""
}

// clientIP is the transport peer address. Forwarding metadata is client controlled and ignored.
func clientIP(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		if host, _, err := net.SplitHostPort(p.Addr.String()); err == nil {
			return host
		}
		return p.Addr.String()
	}
	return "unknown"
}
