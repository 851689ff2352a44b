package sanitize

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxBytes int
		expected string
	}{
		{
			name:     "trims and collapses spaces",
			input:    "  hello   world  ",
			expected: "hello world",
		},
		{
			name:     "newlines and tabs collapse",
			input:    "first\n\tsecond\r\nthird",
			expected: "first second third",
		},
		{
			name:     "control characters dropped",
			input:    "a\x00b\x1fc",
			expected: "abc",
		},
		{
			name:     "control run between words",
			input:    "a \x00 b",
			expected: "a b",
		},
		{
			name:     "case and punctuation preserved",
			input:    "Don't panic!",
			expected: "Don't panic!",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "whitespace only",
			input:    " \t\n ",
			expected: "",
		},
		{
			name:     "byte cap trims partial word spacing",
			input:    "hello world",
			maxBytes: 6,
			expected: "hello",
		},
		{
			name:     "cap inside multi-byte rune backs up",
			input:    "aaaé",
			maxBytes: 4,
			expected: "aaa",
		},
		{
			name:     "under the cap unchanged",
			input:    "short",
			maxBytes: 100,
			expected: "short",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Normalize(tt.input, tt.maxBytes)
			if result != tt.expected {
				t.Errorf("Normalize(%q, %d) = %q, want %q", tt.input, tt.maxBytes, result, tt.expected)
			}
		})
	}
}

func TestNormalize_DefaultCap(t *testing.T) {
	input := strings.Repeat("a", DefaultMaxMessageBytes+512)
	result := Normalize(input, 0)

	if len(result) != DefaultMaxMessageBytes {
		t.Errorf("Normalize with zero cap should apply default: got %d bytes, want %d",
			len(result), DefaultMaxMessageBytes)
	}
}

func TestIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "simple lowercase",
			input:    "session42",
			expected: "session42",
		},
		{
			name:     "uppercase conversion",
			input:    "MySession",
			expected: "mysession",
		},
		{
			name:     "dots to underscores",
			input:    "github.com",
			expected: "github_com",
		},
		{
			name:     "slashes to underscores",
			input:    "team/alice",
			expected: "team_alice",
		},
		{
			name:     "email style user id",
			input:    "User@Example.com",
			expected: "user_example_com",
		},
		{
			name:     "special characters",
			input:    "my-session!@#$%",
			expected: "my_session",
		},
		{
			name:     "multiple underscores collapsed",
			input:    "foo___bar",
			expected: "foo_bar",
		},
		{
			name:     "leading/trailing underscores trimmed",
			input:    "_foo_bar_",
			expected: "foo_bar",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "default",
		},
		{
			name:     "only invalid chars",
			input:    "!!!",
			expected: "default",
		},
		{
			name:     "numbers preserved",
			input:    "session123",
			expected: "session123",
		},
		{
			name:     "underscores preserved",
			input:    "my_session",
			expected: "my_session",
		},
		{
			name:     "spaces to underscores",
			input:    "my session",
			expected: "my_session",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Identifier(tt.input)
			if result != tt.expected {
				t.Errorf("Identifier(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestIdentifier_LengthLimit(t *testing.T) {
	longInput := strings.Repeat("a", 100)
	result := Identifier(longInput)

	if len(result) > MaxIdentifierLength {
		t.Errorf("Identifier should be <= %d chars, got %d", MaxIdentifierLength, len(result))
	}

	// Should end with hash suffix pattern _XXXXXXXX
	if !strings.Contains(result, "_") {
		t.Error("Truncated identifier should contain hash suffix")
	}
}

func TestIdentifier_LengthLimit_Uniqueness(t *testing.T) {
	input1 := strings.Repeat("a", 100)
	input2 := strings.Repeat("a", 99) + "b"

	result1 := Identifier(input1)
	result2 := Identifier(input2)

	if result1 == result2 {
		t.Error("Different inputs should produce different hashed outputs")
	}
}

func TestIdentifier_ExactlyMaxLength(t *testing.T) {
	input := strings.Repeat("a", MaxIdentifierLength)
	result := Identifier(input)

	if result != input {
		t.Errorf("Input at max length should not be modified, got %q", result)
	}
}

func TestIdentifier_ValidChars(t *testing.T) {
	result := Identifier("github.com/user my-session!")

	for _, r := range result {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_') {
			t.Errorf("Identifier contains invalid char %q in %q", string(r), result)
		}
	}
}
