package api

import (
	"time"

	"github.com/founderbleed/bleed/pkg/logger"
	"github.com/founderbleed/bleed/pkg/token"
)

// Option configures a Server.
type Option func(*Server)

// WithTokens enables bearer authentication. Without it every authenticated
// route answers 401.
func WithTokens(m *token.Manager) Option {
	return func(s *Server) {
		s.tokens = m
	}
}

// WithRateLimiter limits each caller to perWindow requests per window.
// A non-positive perWindow disables limiting.
func WithRateLimiter(l RateLimiter, perWindow int, window time.Duration) Option {
	return func(s *Server) {
		s.limiter = l
		s.limit = perWindow
		if window > 0 {
			s.window = window
		}
	}
}

// WithMaxListLimit caps GET /v1/audits?limit.
func WithMaxListLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.auditLimit = n
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}
