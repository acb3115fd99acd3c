// Package rate provides a Redis-backed fixed-window attempt limiter used by
// the reference server to throttle credential and reset endpoints.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Callers pick
// a key prefix per endpoint, e.g. "rl:login:" keyed by email and client IP.
//
// Failed-attempt budgets use [Limiter.Check] before the attempt, [Limiter.Hit]
// on failure and [Limiter.Reset] on success. Request budgets call Hit on
// every attempt.
package rate
