package httpcore

import "strings"

// Url holds views into the raw request-target the request was parsed
// from. Path is dot-segment-normalized and begins with '/', except for the
// literal "*" form (RFC2616 5.1.2), where FullRaw is "*" and Path and every
// other field are empty.
type Url struct {
	FullRaw string
	Path    string
	Query   string
	Params  string
	Fragment string
}

// isSchemeChar reports whether ch may appear in a URI scheme token
// (RFC1808 2.4.2). This replaces the original source's buggy
// isAlphaNum disjunction (`ch >= 'A' || ch <= 'Z'`, almost always true)
// with a correct alphanumeric test — see SPEC_FULL.md §0.
func isSchemeChar(ch byte) bool {
	return isAlphaNum(ch) || ch == '+' || ch == '.' || ch == '-'
}

func isAlphaNum(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// ParseURL dissects a raw request-target per spec.md §4.1, returning
// false on failure (caller responds 400).
func ParseURL(raw string) (Url, bool) {
	url := Url{FullRaw: raw}

	// RFC2616 5.1.2 special case.
	if raw == "*" {
		return url, true
	}

	rest := raw

	// RFC1808 2.4.1: fragment is not technically part of the URL, but is
	// preserved.
	if idx := strings.IndexByte(rest, '#'); idx >= 0 {
		url.Fragment = rest[idx+1:]
		rest = rest[:idx]
	}

	if rest == "" {
		return Url{}, false
	}

	// Absolute-URI form: accept and discard the scheme.
	if colon := strings.IndexByte(rest, ':'); colon >= 0 {
		isScheme := true
		for i := 0; i < colon; i++ {
			if !isSchemeChar(rest[i]) {
				isScheme = false
				break
			}
		}
		if isScheme {
			rest = rest[colon+1:]
		}
	}

	// RFC1808 2.4.3: strip a leading net_loc up to the next '/'. Be
	// lenient and simply ignore the authority rather than validating it.
	if len(rest) >= 2 && rest[:2] == "//" {
		if slash := strings.IndexByte(rest[2:], '/'); slash >= 0 {
			rest = rest[2+slash:]
		} else {
			rest = ""
		}
	}

	// RFC1808 2.4.4
	if idx := strings.IndexByte(rest, '?'); idx >= 0 {
		url.Query = rest[idx+1:]
		rest = rest[:idx]
	}

	// RFC1808 2.4.5
	if idx := strings.IndexByte(rest, ';'); idx >= 0 {
		url.Params = rest[idx+1:]
		rest = rest[:idx]
	}

	if rest == "" || rest[0] != '/' {
		return Url{}, false
	}
	url.Path = removeDotSegments(rest)

	return url, true
}

// removeDotSegments implements RFC3986 5.2.4 for an input that is known to
// start with '/'. Mirrors original_source/src/http.cpp removeDotSegments.
func removeDotSegments(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	for len(input) > 0 {
		if input == "/" {
			out.WriteByte('/')
			break
		}

		segmentLen := strings.IndexByte(input[1:], '/')
		var segment string
		if segmentLen < 0 {
			segment = input
		} else {
			segment = input[:segmentLen+1]
		}

		switch segment {
		case "/.":
			// drop
		case "/..":
			s := out.String()
			if lastSlash := strings.LastIndexByte(s, '/'); lastSlash >= 0 {
				trimmed := s[:lastSlash]
				out.Reset()
				out.WriteString(trimmed)
			}
		default:
			out.WriteString(segment)
		}

		if segmentLen < 0 {
			break
		}
		input = input[segmentLen+1:]
	}

	if out.Len() == 0 {
		return "/"
	}
	return out.String()
}
