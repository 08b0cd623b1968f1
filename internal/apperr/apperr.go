// Package apperr defines the error taxonomy from spec §7 and the HTTP
// status mapping the transport layer needs, ported from the original
// `error/mod.rs`'s `http_status()`.
package apperr

import (
	"net/http"

	"github.com/pkg/errors"
)

// Kind distinguishes the taxonomy's categories. The zero value is not
// a valid Kind; every constructed AppError carries one explicitly.
type Kind int

const (
	// KindParam — malformed input (bad platform string, malformed
	// UUID, unparseable URI). Returned to the user.
	KindParam Kind = iota + 1
	// KindNoResult — a positive "not found". Surfaced as null on
	// optional fields, a typed error on required ones.
	KindNoResult
	// KindUpstream — non-2xx from an upstream, or a shape-mismatched
	// response. Logged; never fails a request that has a cached value.
	KindUpstream
	// KindStore — connectivity or query-shape error from the graph
	// database. Surfaced as an internal error.
	KindStore
	// KindPool — store connection pool exhaustion. Surfaced as an
	// internal error.
	KindPool
	// KindConfig — startup-only configuration error.
	KindConfig
	// KindFatal — startup-only, unrecoverable.
	KindFatal
)

// String names a Kind for logging and GraphQL error extensions.
func (k Kind) String() string {
	switch k {
	case KindParam:
		return "param_error"
	case KindNoResult:
		return "no_result"
	case KindUpstream:
		return "upstream_error"
	case KindStore:
		return "store_error"
	case KindPool:
		return "pool_error"
	case KindConfig:
		return "config_error"
	case KindFatal:
		return "fatal_error"
	default:
		return "unknown_error"
	}
}

// AppError wraps an error with the taxonomy Kind that decides how the
// propagation policy (spec §7) and the transport layer treat it.
type AppError struct {
	Kind Kind
	msg  string
	Err  error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.msg + ": " + e.Err.Error()
	}
	return e.msg
}

func (e *AppError) Unwrap() error { return e.Err }

// Extensions surfaces the taxonomy Kind and its HTTP status on the
// GraphQL error's `extensions` field. graph-gophers/graphql-go merges
// this into the response automatically for any resolver error
// implementing the interface, which is what the transport layer reads
// back to pick the HTTP response status (spec §7).
func (e *AppError) Extensions() map[string]interface{} {
	return map[string]interface{}{
		"code":       e.Kind.String(),
		"statusCode": HTTPStatus(e),
	}
}

func newErr(kind Kind, msg string, err error) *AppError {
	return &AppError{Kind: kind, msg: msg, Err: err}
}

func Param(msg string) error               { return newErr(KindParam, msg, nil) }
func ParamWrap(err error, msg string) error { return newErr(KindParam, msg, err) }
func NoResult(msg string) error             { return newErr(KindNoResult, msg, nil) }
func Upstream(msg string, err error) error  { return newErr(KindUpstream, msg, err) }
func Store(msg string, err error) error     { return newErr(KindStore, msg, err) }
func Pool(msg string, err error) error      { return newErr(KindPool, msg, err) }
func Config(msg string, err error) error    { return newErr(KindConfig, msg, err) }

// Wrap adds context the way every other component boundary in this
// codebase does, using pkg/errors rather than fmt.Errorf so the causal
// chain survives for %+v logging.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, msg)
}

// KindOf walks the error chain for an *AppError and returns its Kind,
// or 0 if none is found (an un-taxonomized error, treated as KindStore
// by callers that must pick something for the HTTP edge).
func KindOf(err error) Kind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return 0
}

// HTTPStatus maps an error's Kind to the status code the edge should
// return, mirroring `error/mod.rs`'s `http_status()` from the
// original implementation.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindParam, KindNoResult:
		return http.StatusBadRequest
	case KindUpstream:
		// Never reaches the edge on the read path (spec §7): an
		// upstream failure degrades to "serve what we have". Kept
		// here for completeness of the mapping.
		return http.StatusBadGateway
	case KindStore, KindPool, KindFatal:
		return http.StatusInternalServerError
	case KindConfig:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
