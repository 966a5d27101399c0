package media

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "invalid characters and control whitespace removed",
			input: "a/b\\c:d*e?f\n\tg",
			want:  "abcdefg",
		},
		{
			name:  "all invalid characters fall back to generic name",
			input: "<>:\"/\\|?*",
			want:  "file",
		},
		{
			name:  "empty input falls back to generic name",
			input: "",
			want:  "file",
		},
		{
			name:  "whitespace only falls back to generic name",
			input: " \n\t  ",
			want:  "file",
		},
		{
			name:  "internal space runs collapse to single spaces",
			input: "lesson  1   introduction to   go",
			want:  "lesson 1 introduction to go",
		},
		{
			name:  "leading and trailing whitespace trimmed",
			input: "  module 3 overview  ",
			want:  "module 3 overview",
		},
		{
			name:  "plain name untouched",
			input: "aula 01 - estruturas de dados",
			want:  "aula 01 - estruturas de dados",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename_Truncation(t *testing.T) {
	long := strings.Repeat("a", 300)
	got := SanitizeFilename(long)
	if len([]rune(got)) != 150 {
		t.Errorf("truncated length = %d runes, want 150", len([]rune(got)))
	}
}

func TestSanitizeFilename_TruncationMultibyte(t *testing.T) {
	// 200 two-byte runes; truncation must count runes, not bytes
	long := strings.Repeat("é", 200)
	got := SanitizeFilename(long)
	runes := []rune(got)
	if len(runes) != 150 {
		t.Errorf("truncated length = %d runes, want 150", len(runes))
	}
	for i, r := range runes {
		if r != 'é' {
			t.Fatalf("rune %d corrupted: %q", i, r)
		}
	}
}
