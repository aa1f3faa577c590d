package texttospeech

import "testing"

func TestCleanText(t *testing.T) {
	type testCase struct {
		name      string
		in        string
		maxLength int
		want      string
	}

	testCases := []testCase{
		{name: "assistant name", in: "I am L.U.N.A.", want: "I am Luna"},
		{name: "acronyms", in: "The API returns JSON over HTTP", want: "The A P I returns J son over H T T P"},
		{name: "acronym inside a word is kept", in: "Check your EMAIL", want: "Check your EMAIL"},
		{name: "symbols", in: "Tom & Jerry @ home, 50% done", want: "Tom and Jerry at home, 50 percent done"},
		{name: "markdown emphasis", in: "**bold** and `code`", want: "bold and code"},
		{name: "whitespace", in: "  one\n\ntwo\tthree  ", want: "one two three"},
		{name: "truncated", in: "abcdefghij", maxLength: 8, want: "abcde..."},
		{name: "no truncation", in: "abcdefghij", maxLength: 0, want: "abcdefghij"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanText(tc.in, tc.maxLength); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
