// Package client talks to the clautod gRPC endpoint on behalf of the admin
// CLI.
//
// # Overview
//
// GRPCClient keeps the session token in memory, optionally mirrored to a
// file, and attaches it to every call through a unary interceptor. The
// server may answer with a "session_token" response header: a non-empty
// value replaces the stored token (login, renewal), an empty value clears
// it (logout).
//
// Requests and responses are google.protobuf.Struct values. Results arrive
// as {"result": ...} and are decoded into Session, User or a count.
//
// # Error Handling
//
// gRPC statuses become *RemoteError values that unwrap to a sentinel, so
// callers match them with errors.Is: ErrUnavailable, ErrUnauthorized, or
// one of the common package errors (ErrValidation, ErrForbidden, ...).
package client
