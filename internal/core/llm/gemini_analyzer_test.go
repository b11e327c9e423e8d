package llm

import "testing"

func TestExtractJSONPlain(t *testing.T) {
	in := `{"title":"T"}`
	if got := ExtractJSON(in); got != in {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONFenced(t *testing.T) {
	in := "```json\n{\"title\":\"T\"}\n```"
	if got := ExtractJSON(in); got != `{"title":"T"}` {
		t.Fatalf("got %q", got)
	}
}

func TestExtractJSONWithProse(t *testing.T) {
	in := "Here is the analysis:\n{\"title\":\"T\",\"outline\":[]}\nHope this helps."
	if got := ExtractJSON(in); got != `{"title":"T","outline":[]}` {
		t.Fatalf("got %q", got)
	}
}
