// Package template implements the double-brace string-template renderer
// described by the evaluation context: variable interpolation, if/elif/else
// and for blocks, pipe-style filters, dotted/bracketed attribute access,
// strict-undefined name resolution and HTML/XML autoescaping.
package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// UndefinedError is raised the moment a template references a name (or a
// path segment) that does not resolve against the rendering context.
// Silent empty-string substitution is never allowed.
type UndefinedError struct {
	Name           string
	AvailableKeys  []string
	availableKnown bool
}

func (e *UndefinedError) Error() string {
	if e.availableKnown {
		sort.Strings(e.AvailableKeys)
		return fmt.Sprintf("variable or field %q is not defined (available: %s)", e.Name, strings.Join(e.AvailableKeys, ", "))
	}
	return fmt.Sprintf("variable or field %q is not defined", e.Name)
}

// pathSegment is either a dotted field name or a bracketed index/key.
type pathSegment struct {
	name    string
	indexed bool
	index   any // int or string, only set when indexed
}

// parsePath splits "a.b[0].c['d']" into segments.
func parsePath(s string) ([]pathSegment, error) {
	var segs []pathSegment
	i := 0
	n := len(s)
	for i < n {
		switch {
		case s[i] == '.':
			i++
		case s[i] == '[':
			j := strings.IndexByte(s[i:], ']')
			if j < 0 {
				return nil, fmt.Errorf("unterminated [ in path %q", s)
			}
			inner := strings.TrimSpace(s[i+1 : i+j])
			i += j + 1
			if len(inner) >= 2 && (inner[0] == '\'' || inner[0] == '"') {
				segs = append(segs, pathSegment{indexed: true, index: inner[1 : len(inner)-1]})
			} else if idx, err := strconv.Atoi(inner); err == nil {
				segs = append(segs, pathSegment{indexed: true, index: idx})
			} else {
				segs = append(segs, pathSegment{indexed: true, index: inner})
			}
		default:
			j := i
			for j < n && s[j] != '.' && s[j] != '[' {
				j++
			}
			segs = append(segs, pathSegment{name: s[i:j]})
			i = j
		}
	}
	return segs, nil
}

// resolvePath walks segs against root, returning an UndefinedError with the
// sibling keys of the last map it successfully stood in the moment
// resolution failed.
func resolvePath(fullName string, segs []pathSegment, root map[string]any) (any, error) {
	var cur any = root
	for idx, seg := range segs {
		switch c := cur.(type) {
		case map[string]any:
			if seg.indexed {
				key, ok := seg.index.(string)
				if !ok {
					return nil, undefinedAt(fullName, segs, idx, keysOf(c))
				}
				v, ok := c[key]
				if !ok {
					return nil, undefinedAt(fullName, segs, idx, keysOf(c))
				}
				cur = v
				continue
			}
			v, ok := c[seg.name]
			if !ok {
				return nil, undefinedAt(fullName, segs, idx, keysOf(c))
			}
			cur = v
		case []any:
			if !seg.indexed {
				return nil, undefinedAt(fullName, segs, idx, nil)
			}
			i, ok := seg.index.(int)
			if !ok || i < 0 || i >= len(c) {
				return nil, undefinedAt(fullName, segs, idx, nil)
			}
			cur = c[i]
		default:
			return nil, undefinedAt(fullName, segs, idx, nil)
		}
	}
	return cur, nil
}

func keysOf(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func undefinedAt(fullName string, segs []pathSegment, idx int, siblings []string) error {
	return &UndefinedError{Name: fullName, AvailableKeys: siblings, availableKnown: siblings != nil}
}

// Lookup resolves a dotted/bracketed path string against ctx.
func Lookup(path string, ctx map[string]any) (any, error) {
	segs, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty variable path")
	}
	return resolvePath(path, segs, ctx)
}
