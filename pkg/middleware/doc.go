// Package middleware provides HTTP middleware for authentication, permission
// snapshots, and rate limiting.
//
// # Overview
//
// This package implements request processing middleware including bearer
// token authentication, request-scoped permission snapshot computation, and
// rate limiting (in-memory and Redis-backed).
//
// # Middleware Components
//
// AuthMiddleware: Token-based authentication
//
//	authMw := middleware.NewAuthMiddleware(tokenManager, false)
//	router.Use(authMw.Handler)
//	// Extracts Bearer token, validates, adds AuthContext to request
//
// PermissionsMiddleware: Precomputed grant snapshot
//
//	permMw := middleware.NewPermissionsMiddleware(resolver)
//	router.Use(permMw.Handler)
//	// Resolves the actor's effective grants once per request
//
// RateLimitMiddleware: In-memory rate limiting
//
//	router.Use(middleware.NewRateLimitMiddleware().Handler)
//
// DistributedRateLimitMiddleware: Redis-backed rate limiting
//
//	router.Use(middleware.NewDistributedRateLimitMiddleware(redisClient).Handler)
//
// # Rate Limiting
//
// Default (Anonymous): 100 req/min, 10 burst
// Per-Actor: 1000 req/min, 50 burst
// Per-Administrator: 5000 req/min, 100 burst
//
// # Related Packages
//
//   - pkg/auth: Token validation
//   - pkg/authz: Grant resolution
package middleware
