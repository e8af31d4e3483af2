package pagination

import (
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)
	s := Encode(at, "ADM10101")

	c, err := Decode(s)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !c.CreatedAt.Equal(at) {
		t.Errorf("created_at mismatch: %v != %v", c.CreatedAt, at)
	}
	if c.ID != "ADM10101" {
		t.Errorf("id mismatch: %q", c.ID)
	}
}

func TestDecodeEmpty(t *testing.T) {
	c, err := Decode("")
	if err != nil || c != nil {
		t.Fatalf("expected nil, nil; got %v, %v", c, err)
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, s := range []string{"not-base64!!!", "aGVsbG8=", "fHw="} {
		if _, err := Decode(s); !errors.Is(err, ErrInvalidCursor) {
			t.Errorf("Decode(%q): expected ErrInvalidCursor, got %v", s, err)
		}
	}
}

func TestClampLimit(t *testing.T) {
	cases := map[int]int{-5: DefaultLimit, 0: DefaultLimit, 1: 1, 50: 50, 100: 100, 500: MaxLimit}
	for in, want := range cases {
		if got := ClampLimit(in); got != want {
			t.Errorf("ClampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestComputePage(t *testing.T) {
	type row struct {
		id string
		at time.Time
	}
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	items := []row{
		{"A", base},
		{"B", base.Add(time.Minute)},
		{"C", base.Add(2 * time.Minute)},
	}
	key := func(r row) (time.Time, string) { return r.at, r.id }

	page, next, more := ComputePage(items, 2, key)
	if len(page) != 2 || !more || next == "" {
		t.Fatalf("expected trimmed page with cursor, got %d items, more=%v", len(page), more)
	}
	c, err := Decode(next)
	if err != nil {
		t.Fatalf("decode next: %v", err)
	}
	if c.ID != "B" {
		t.Errorf("cursor should point at last retained item, got %q", c.ID)
	}

	page, next, more = ComputePage(items, 3, key)
	if len(page) != 3 || more || next != "" {
		t.Fatalf("full fetch should have no next page")
	}
}
