package ref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// exprPattern matches one reference expression: @slug.output followed by any
// number of .field or [index] segments. Slugs and field names are word
// characters; indexes are unsigned integers.
var exprPattern = regexp.MustCompile(
	`@([A-Za-z_][A-Za-z0-9_]*)\.([A-Za-z_][A-Za-z0-9_]*)((?:\.[A-Za-z0-9_]+|\[[0-9]+\])*)`)

// segmentPattern splits the trailing path into its segments.
var segmentPattern = regexp.MustCompile(`\.([A-Za-z0-9_]+)|\[([0-9]+)\]`)

// Segment is one step of a reference path: either a key/field name or an
// integer index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

// String returns the segment in expression syntax.
func (s Segment) String() string {
	if s.IsIndex {
		return "[" + strconv.Itoa(s.Index) + "]"
	}
	return "." + s.Key
}

// Expr is the parsed form of one reference expression.
type Expr struct {
	// Slug names the referenced vertex.
	Slug string
	// Output names the entry in that vertex's outputs map.
	Output string
	// Path holds the traversal segments applied to the output value.
	Path []Segment

	raw string
}

// String returns the original expression text.
func (e *Expr) String() string { return e.raw }

// Parse parses s, which must consist of exactly one reference expression.
func Parse(s string) (*Expr, error) {
	loc := exprPattern.FindStringIndex(s)
	if loc == nil || loc[0] != 0 || loc[1] != len(s) {
		return nil, &ParseError{Input: s}
	}
	return parseMatch(exprPattern.FindStringSubmatch(s)), nil
}

// IsExpr reports whether s is exactly one reference expression.
func IsExpr(s string) bool {
	loc := exprPattern.FindStringIndex(s)
	return loc != nil && loc[0] == 0 && loc[1] == len(s)
}

// Find returns every reference expression embedded in s, in order of
// appearance.
func Find(s string) []*Expr {
	if !strings.Contains(s, "@") {
		return nil
	}
	matches := exprPattern.FindAllStringSubmatch(s, -1)
	out := make([]*Expr, 0, len(matches))
	for _, m := range matches {
		out = append(out, parseMatch(m))
	}
	return out
}

func parseMatch(m []string) *Expr {
	e := &Expr{
		Slug:   m[1],
		Output: m[2],
		raw:    m[0],
	}
	for _, seg := range segmentPattern.FindAllStringSubmatch(m[3], -1) {
		if seg[1] != "" {
			e.Path = append(e.Path, Segment{Key: seg[1]})
		} else {
			idx, _ := strconv.Atoi(seg[2])
			e.Path = append(e.Path, Segment{Index: idx, IsIndex: true})
		}
	}
	return e
}

// Source provides already-built vertex outputs by slug.
// *vertexflow.Graph implements it.
type Source interface {
	OutputsOf(slug string) (map[string]any, bool)
}

// Resolve parses expr and resolves it against src. The resolved value keeps
// its original type.
func Resolve(expr string, src Source) (any, error) {
	e, err := Parse(expr)
	if err != nil {
		return nil, err
	}
	outputs, ok := src.OutputsOf(e.Slug)
	if !ok {
		return nil, &NodeNotFoundError{Slug: e.Slug}
	}
	return e.Resolve(outputs)
}

// Interpolate substitutes every reference expression embedded in s, calling
// resolve for each one and splicing the stringified result back into the
// surrounding text. Resolution stops at the first error.
func Interpolate(s string, resolve func(*Expr) (any, error)) (string, error) {
	if !strings.Contains(s, "@") {
		return s, nil
	}

	var resolveErr error
	out := exprPattern.ReplaceAllStringFunc(s, func(match string) string {
		if resolveErr != nil {
			return match
		}
		e := parseMatch(exprPattern.FindStringSubmatch(match))
		val, err := resolve(e)
		if err != nil {
			resolveErr = err
			return match
		}
		return fmt.Sprintf("%v", val)
	})
	if resolveErr != nil {
		return "", resolveErr
	}
	return out, nil
}
