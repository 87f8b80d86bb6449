// Package logx wraps zerolog for numwatch.
//
// Console output is human-readable with a short caller, the optional file
// sink writes JSON lines, and warnings and errors can be mirrored to a
// Telegram log chat behind a level floor and a rate limiter.
package logx
