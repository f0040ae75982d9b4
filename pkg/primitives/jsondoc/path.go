package jsondoc

import (
	"strconv"
	"strings"

	"github.com/stratadb/strata/pkg/strataerr"
)

// segKind discriminates one step of a parsed path.
type segKind int

const (
	segField segKind = iota
	segIndex
	segAppend
)

type segment struct {
	kind  segKind
	field string
	index int
}

// MaxPathLength bounds a path string's length before it is even
// parsed.
const MaxPathLength = 2048

// parsePath parses the path grammar: root "$", field "$.f", index
// "$.a[i]", append "$.a[-]". Segments chain without limit; "[-]" is
// only legal as the final segment, since appending only makes sense at
// the path's end.
func parsePath(path string) ([]segment, error) {
	if len(path) > MaxPathLength {
		return nil, strataerr.New(strataerr.JsonPathError, "path exceeds %d bytes", MaxPathLength)
	}
	if path == "" || path[0] != '$' {
		return nil, strataerr.New(strataerr.JsonPathError, "path must start with '$'")
	}
	rest := path[1:]
	if rest == "" {
		return nil, nil
	}

	var segs []segment
	i := 0
	for i < len(rest) {
		switch rest[i] {
		case '.':
			i++
			start := i
			for i < len(rest) && rest[i] != '.' && rest[i] != '[' {
				i++
			}
			field := rest[start:i]
			if field == "" {
				return nil, strataerr.New(strataerr.JsonPathError, "empty field name in path %q", path)
			}
			segs = append(segs, segment{kind: segField, field: field})
		case '[':
			end := strings.IndexByte(rest[i:], ']')
			if end < 0 {
				return nil, strataerr.New(strataerr.JsonPathError, "unterminated '[' in path %q", path)
			}
			inner := rest[i+1 : i+end]
			i += end + 1
			if inner == "-" {
				segs = append(segs, segment{kind: segAppend})
				break
			}
			n, err := strconv.Atoi(inner)
			if err != nil || n < 0 {
				return nil, strataerr.New(strataerr.JsonPathError, "invalid array index %q in path %q", inner, path)
			}
			segs = append(segs, segment{kind: segIndex, index: n})
		default:
			return nil, strataerr.New(strataerr.JsonPathError, "unexpected character %q in path %q", string(rest[i]), path)
		}
	}

	for idx, s := range segs {
		if s.kind == segAppend && idx != len(segs)-1 {
			return nil, strataerr.New(strataerr.JsonPathError, "'[-]' append must be the final path segment")
		}
	}
	return segs, nil
}
