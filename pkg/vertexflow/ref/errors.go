package ref

import "fmt"

// ParseError indicates text that is not a valid reference expression.
type ParseError struct {
	Input string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("not a reference expression: %q", e.Input)
}

// NodeNotFoundError indicates the referenced slug does not exist.
type NodeNotFoundError struct {
	Slug string
}

// Error implements the error interface.
func (e *NodeNotFoundError) Error() string {
	return fmt.Sprintf("referenced vertex %q not found", e.Slug)
}

// OutputNotFoundError indicates the named output is not present in the
// referenced vertex's outputs.
type OutputNotFoundError struct {
	Slug   string
	Output string
}

// Error implements the error interface.
func (e *OutputNotFoundError) Error() string {
	return fmt.Sprintf("vertex %q has no output %q", e.Slug, e.Output)
}

// PathNotFoundError indicates a missing key, index, or field somewhere along
// the traversal path. No partial results are returned.
type PathNotFoundError struct {
	// Expr is the full expression text.
	Expr string
	// Segment is the segment that failed, in expression syntax.
	Segment string
	// Depth is the zero-based position of the failing segment.
	Depth int
	// Reason describes the failure.
	Reason string
}

// Error implements the error interface.
func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("%s: segment %s: %s", e.Expr, e.Segment, e.Reason)
}

// ForbiddenAccessError indicates an attribute access outside the public
// surface: underscore-prefixed, unexported, or denylisted names.
type ForbiddenAccessError struct {
	// Expr is the full expression text, when known.
	Expr string
	// Name is the rejected attribute name.
	Name string
}

// Error implements the error interface.
func (e *ForbiddenAccessError) Error() string {
	if e.Expr != "" {
		return fmt.Sprintf("%s: access to attribute %q is forbidden", e.Expr, e.Name)
	}
	return fmt.Sprintf("access to attribute %q is forbidden", e.Name)
}
