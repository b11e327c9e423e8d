package textutil

import "testing"

func TestNormalizeText(t *testing.T) {
	in := "  Hello\x00 world\n\nthis\tis \r\n text  "
	want := "Hello world this is text"
	got := NormalizeText(in)
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestNormalizeTextIdempotent(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"plain",
		"a\x00b\nc\td  e",
	}
	for _, c := range cases {
		once := NormalizeText(c)
		twice := NormalizeText(once)
		if once != twice {
			t.Fatalf("not idempotent for %q: %q vs %q", c, once, twice)
		}
	}
}

func TestNormalizeTextEmpty(t *testing.T) {
	if got := NormalizeText("\x00 \n\t"); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
