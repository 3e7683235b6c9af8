package httpcore

import (
	"strings"
	"testing"
)

func TestHeaderMap_CaseInsensitiveGet(t *testing.T) {
	var h HeaderMap
	h.Add("Content-Type", "text/plain")

	for _, name := range []string{"content-type", "CONTENT-TYPE", "Content-Type", "cOnTeNt-TyPe"} {
		v, ok := h.Get(name)
		if !ok || v != "text/plain" {
			t.Errorf("Get(%q) = (%q, %v), want (text/plain, true)", name, v, ok)
		}
	}
}

func TestHeaderMap_MultiValueAppend(t *testing.T) {
	var h HeaderMap
	h.Add("Set-Cookie", "a=1")
	h.Add("Set-Cookie", "b=2")

	all := h.GetAll("set-cookie")
	if len(all) != 2 || all[0] != "a=1" || all[1] != "b=2" {
		t.Fatalf("GetAll = %v", all)
	}

	first, ok := h.Get("Set-Cookie")
	if !ok || first != "a=1" {
		t.Errorf("Get returned %q, want first value a=1", first)
	}
}

func TestHeaderMap_PreservesFirstSeenCasing(t *testing.T) {
	var h HeaderMap
	h.Add("X-Request-Id", "abc")

	var sb strings.Builder
	h.Serialize(&sb)
	if !strings.Contains(sb.String(), "X-Request-Id: abc\r\n") {
		t.Errorf("serialized form %q did not preserve casing", sb.String())
	}
}

func TestHeaderMap_InsertionOrder(t *testing.T) {
	var h HeaderMap
	h.Add("A", "1")
	h.Add("C", "3")
	h.Add("B", "2")

	var sb strings.Builder
	h.Serialize(&sb)
	want := "A: 1\r\nC: 3\r\nB: 2\r\n"
	if sb.String() != want {
		t.Errorf("Serialize() = %q, want %q", sb.String(), want)
	}
}

func TestHeaderMap_ContainsCaseInsensitive(t *testing.T) {
	var h HeaderMap
	h.Add("Host", "example.com")
	if !h.Contains("HOST") {
		t.Error("Contains(HOST) = false, want true")
	}
	if h.Contains("Missing") {
		t.Error("Contains(Missing) = true, want false")
	}
}
