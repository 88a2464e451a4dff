package util

import (
	"slices"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain utf8",
			input: "hello world",
			want:  "hello world",
		},
		{
			name:  "contains null byte",
			input: "hel\x00lo",
			want:  "hello",
		},
		{
			name:  "contains invalid utf8",
			input: string([]byte{'a', 0xff, 'b'}),
			want:  "ab",
		},
		{
			name:  "surrounding whitespace",
			input: "  Attention Is All You Need\n",
			want:  "Attention Is All You Need",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeText(tt.input)
			if got != tt.want {
				t.Fatalf("unexpected sanitized value: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeList(t *testing.T) {
	got := SanitizeList([]string{" ml ", "\x00", "", "nlp"})
	if want := []string{"ml", "nlp"}; !slices.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}
