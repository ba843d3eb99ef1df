// Package hostlist expands compact host expressions of the form
// "node[1-4,7]" into individual names. Expressions may contain several
// comma-separated parts and several bracket groups per part; numeric ranges
// preserve the zero padding of their lower bound.
package hostlist

import (
	"fmt"
	"strconv"
	"strings"
)

// Expand returns the individual names described by expr, in declaration
// order. A plain name without brackets expands to itself.
func Expand(expr string) ([]string, error) {
	var out []string
	for _, part := range splitParts(expr) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		names, err := expandPart(part)
		if err != nil {
			return nil, err
		}
		out = append(out, names...)
	}
	return out, nil
}

// splitParts splits on top-level commas, leaving commas inside bracket
// groups alone.
func splitParts(expr string) []string {
	var parts []string
	depth := 0
	start := 0
	for i, r := range expr {
		switch r {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, expr[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, expr[start:])
	return parts
}

// expandPart expands the first bracket group of one part and recurses on
// the remainder, so "r[1-2]n[1-2]" yields the full cross product.
func expandPart(part string) ([]string, error) {
	open := strings.IndexByte(part, '[')
	if open < 0 {
		if strings.IndexByte(part, ']') >= 0 {
			return nil, fmt.Errorf("hostlist: unbalanced ']' in %q", part)
		}
		return []string{part}, nil
	}
	close := strings.IndexByte(part[open:], ']')
	if close < 0 {
		return nil, fmt.Errorf("hostlist: unbalanced '[' in %q", part)
	}
	close += open

	prefix := part[:open]
	group := part[open+1 : close]
	rest := part[close+1:]

	tails, err := expandPart(rest)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, rng := range strings.Split(group, ",") {
		rng = strings.TrimSpace(rng)
		if rng == "" {
			return nil, fmt.Errorf("hostlist: empty range in %q", part)
		}
		lo, hi, width, err := parseRange(rng)
		if err != nil {
			return nil, err
		}
		for n := lo; n <= hi; n++ {
			for _, tail := range tails {
				out = append(out, fmt.Sprintf("%s%0*d%s", prefix, width, n, tail))
			}
		}
	}
	return out, nil
}

func parseRange(rng string) (lo, hi, width int, err error) {
	loStr, hiStr, isRange := strings.Cut(rng, "-")
	if !isRange {
		hiStr = loStr
	}
	lo, err = strconv.Atoi(loStr)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("hostlist: bad range bound %q: %w", loStr, err)
	}
	hi, err = strconv.Atoi(hiStr)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("hostlist: bad range bound %q: %w", hiStr, err)
	}
	if hi < lo {
		return 0, 0, 0, fmt.Errorf("hostlist: inverted range %q", rng)
	}
	width = 1
	if len(loStr) > 1 && loStr[0] == '0' {
		width = len(loStr)
	}
	return lo, hi, width, nil
}
