// Package async provides a safe wrapper for background goroutines.
//
// Bare `go func()` calls from request handlers leak goroutines when the
// work outlives the request and crash the server when the work panics.
// SafeGo bounds the work with a timeout, recovers panics, and logs
// failures instead of propagating them.
package async
