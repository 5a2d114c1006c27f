// Package httpapi exposes the scheduling service over HTTP.
//
// The surface is small: create/read/delete scheduled events per chat,
// trigger a command immediately, and a handful of read-only stats plus
// process-control actions. Every route sits behind bearer-token auth;
// the server refuses to bind a non-loopback address without a token.
//
// The server runs under its own supervisor with a restart loop, so a
// transient listen failure self-heals instead of taking the app down.
package httpapi
