package httpx

import "testing"

func TestHeaderCanonicalAndAddSetGet(t *testing.T) {
	h := Header{}
	h.Add("content-type", "text/plain")
	h.Add("Content-Type", "charset=utf-8")
	h.Add("HOST", "example.com")
	h.Set("x-powered-by", "go")

	// Keys must be stored/accessible in canonical form.
	if got := h.Get("CONTENT-TYPE"); got != "text/plain" { // FIRST value only
		t.Fatalf("Get(Content-Type) = %q, want %q", got, "text/plain")
	}
	if got := h.Get("host"); got != "example.com" {
		t.Fatalf("Get(Host) = %q", got)
	}
	// Set replaces previous values.
	h.Set("X-Powered-By", "rust? no, go")
	if got := h.Get("x-powered-by"); got != "rust? no, go" {
		t.Fatalf("Get after Set = %q", got)
	}
}

func TestHeaderValuesAndDel(t *testing.T) {
	h := Header{}
	h.Add("Accept", "text/html")
	h.Add("ACCEPT", "application/json")

	vals := h.Values("accept")
	if len(vals) != 2 || vals[0] != "text/html" || vals[1] != "application/json" {
		t.Fatalf("Values = %#v", vals)
	}

	// Values must NOT be a copy (mutations reflect in map),
	// mirroring stdlib's documented behavior.
	vals[0] = "text/plain"
	if got := h.Values("Accept")[0]; got != "text/plain" {
		t.Fatalf("Values slice should reflect underlying map change, got %q", got)
	}

	h.Del("ACCEPT")
	if got := len(h.Values("Accept")); got != 0 {
		t.Fatalf("Del failed, still %d values", got)
	}
}

func TestHeaderOrderPreservesInsertionOrder(t *testing.T) {
	h := Header{}
	h.Add("User-Agent", "httpx/1")
	h.Add("Content-Length", "0")
	h.Add("Accept", "*/*")
	want := []string{"User-Agent", "Content-Length", "Accept"}
	if got := h.Keys(); len(got) != len(want) {
		t.Fatalf("Keys() = %#v, want %#v", got, want)
	} else {
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("Keys()[%d] = %q, want %q (order=%v)", i, got[i], want[i], got)
			}
		}
	}

	// Re-adding a value to an existing key must not move its position.
	h.Add("User-Agent", "httpx/2")
	if got := h.Keys(); got[0] != "User-Agent" {
		t.Fatalf("re-Add moved key position: %v", got)
	}

	// Del removes the key from the order slice too.
	h.Del("Content-Length")
	got := h.Keys()
	if len(got) != 2 || got[0] != "User-Agent" || got[1] != "Accept" {
		t.Fatalf("Keys() after Del = %#v", got)
	}

	if clone := h.Clone(); clone.Keys()[0] != "User-Agent" || clone.Keys()[1] != "Accept" {
		t.Fatalf("Clone() did not preserve order: %#v", clone.Keys())
	}
}

func TestHeaderValidationLimits(t *testing.T) {
	h := Header{}
	// Prepare many fields quickly.
	for i := 0; i < 5; i++ {
		h.Add("X-K"+string(rune('A'+i)), "v")
	}
	lim := HeaderLimits{
		MaxFields:           4,
		MaxKeyBytes:         32,
		MaxValueBytes:       8,
		MaxTotalValuesBytes: 32,
	}
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected error for too many fields")
	}

	// Invalid name (space) should fail.
	h = Header{}
	h.Add("Bad Name", "v")
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected invalid field-name error")
	}

	// Invalid value (control characters other than HTAB).
	h = Header{}
	h.Add("X-K", "ok\tbut"+string(rune(7))+"bell") // control char other than HTAB → invalid
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected invalid value error")
	}

	// Value too long.
	h = Header{}
	h.Add("X-K", "123456789") // 9 bytes > MaxValueBytes(8)
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected value too long error")
	}

	// Sum of values too large.
	h = Header{}
	h.Add("A", "12345678")
	h.Add("B", "12345678")
	h.Add("C", "1")
	// total = 8+8+1 = 17 > MaxTotalValuesBytes(16) when set so:
	lim.MaxTotalValuesBytes = 16
	if err := ValidateHeader(h, lim); err == nil {
		t.Fatal("expected total values size error")
	}

	// Valid case.
	h = Header{}
	h.Add("Content-Type", "text/plain")
	h.Add("Host", "ex.com")
	lim = HeaderLimits{MaxFields: 8, MaxKeyBytes: 64, MaxValueBytes: 64, MaxTotalValuesBytes: 0}
	if err := ValidateHeader(h, lim); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
}

func TestCanonicalHeaderKeyBehavior(t *testing.T) {
	// Your CanonicalHeaderKey must match stdlib's semantics.
	cases := map[string]string{
		"content-type": "Content-Type",
		"HOST":         "Host",
		"etag":         "Etag",
		"x-custom-id":  "X-Custom-Id",
		"r":            "R",
		"":             "",
	}
	for in, want := range cases {
		if got := CanonicalHeaderKey(in); got != want {
			t.Fatalf("CanonicalHeaderKey(%q)=%q, want %q", in, got, want)
		}
	}
}
