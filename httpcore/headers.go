package httpcore

import "strings"

// HeaderField is one (name, value) pair in a HeaderMap, preserving the
// first-seen casing of Name on the wire.
type HeaderField struct {
	Name  string
	Value string
}

// HeaderMap is an insertion-ordered, case-insensitive multi-map, matching
// the semantics of original_source/src/http.hpp's HeaderMap<T>. There is
// no Set: callers producing responses should not Add duplicates unless
// intended.
type HeaderMap struct {
	fields []HeaderField
}

// Add appends a (name, value) pair. Neither name nor value may contain CR,
// LF, and name may not contain ':' — callers are trusted to respect this
// (the parser never violates it; handler-constructed responses are the
// caller's responsibility per spec.md §3).
func (h *HeaderMap) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: name, Value: value})
}

// Get returns the first value stored under name, case-insensitively.
func (h *HeaderMap) Get(name string) (string, bool) {
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			return f.Value, true
		}
	}
	return "", false
}

// GetAll returns every value stored under name, in insertion order.
func (h *HeaderMap) GetAll(name string) []string {
	var out []string
	for _, f := range h.fields {
		if strings.EqualFold(f.Name, name) {
			out = append(out, f.Value)
		}
	}
	return out
}

// Contains reports whether name is present, case-insensitively.
func (h *HeaderMap) Contains(name string) bool {
	_, ok := h.Get(name)
	return ok
}

// Len returns the number of header fields.
func (h *HeaderMap) Len() int {
	return len(h.fields)
}

// Entries returns the (name, value) pairs in insertion order. The
// returned slice must not be mutated by the caller.
func (h *HeaderMap) Entries() []HeaderField {
	return h.fields
}

// Serialize appends each field as "Name: Value\r\n" to sb, in insertion
// order.
func (h *HeaderMap) Serialize(sb *strings.Builder) {
	for _, f := range h.fields {
		sb.WriteString(f.Name)
		sb.WriteString(": ")
		sb.WriteString(f.Value)
		sb.WriteString("\r\n")
	}
}

func isHTTPWhitespace(b byte) bool {
	return b == ' ' || b == '\t'
}

// trimLWS trims leading and trailing linear whitespace (SP, HT) from a
// header value. This is the SPEC_FULL.md §0 fix for the original source's
// "stop at first interior whitespace" bug (spec.md §4.2 step 6 / §9).
func trimLWS(s string) string {
	start := 0
	for start < len(s) && isHTTPWhitespace(s[start]) {
		start++
	}
	end := len(s)
	for end > start && isHTTPWhitespace(s[end-1]) {
		end--
	}
	return s[start:end]
}
