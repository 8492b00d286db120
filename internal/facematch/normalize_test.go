package facematch

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Alice", "Alice"},
		{"  Alice  ", "Alice"},
		{"\tBob\n", "Bob"},
		{"Mary Jane", "Mary Jane"},
		{"Jiří", "Jiří"},
		{"   ", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := NormalizeName(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeName(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeName_KeepsCase(t *testing.T) {
	if NormalizeName("alice") == NormalizeName("Alice") {
		t.Error("names differing in case must stay distinct")
	}
}
