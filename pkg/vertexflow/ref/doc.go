// Package ref parses and resolves cross-vertex reference expressions.
//
// A reference expression names the output of another vertex by slug:
//
//	@Http1.response
//	@Http1.response.body.title
//	@Search.results[0].url
//
// Expressions embedded in text are substituted back into the surrounding
// string; an expression that is the entire value resolves to the raw typed
// value without string coercion.
//
// Traversal is an explicit interpreter over the parsed path, never generic
// reflection over arbitrary members: map values are looked up by key (any
// key, including underscore-prefixed ones), sequences by integer index, and
// structs by exported field name only. Underscore-prefixed or unexported
// attribute names are rejected with ForbiddenAccessError regardless of caller
// privilege; this is a security boundary and cannot be bypassed by
// data-driven paths.
package ref
