package pii

import (
	"testing"

	"github.com/brianvoe/gofakeit/v6"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty input", input: "", expected: ""},
		{name: "Whitespace only", input: "   ", expected: ""},
		{name: "Lowercases", input: "Rio", expected: "rio"},
		{name: "Trims", input: "  Rio de Janeiro  ", expected: "rio de janeiro"},
		{name: "Accent folding", input: "São Paulo", expected: "sao paulo"},
		{name: "Already folded equivalent", input: "sao paulo", expected: "sao paulo"},
		{name: "Mixed diacritics", input: "Brasília", expected: "brasilia"},
		{name: "German umlaut", input: "München", expected: "munchen"},
		{name: "Keeps punctuation", input: "01310-100", expected: "01310-100"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.expected {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestNormalize_DiacriticEquivalence(t *testing.T) {
	pairs := [][2]string{
		{"São Paulo", "SAO PAULO"},
		{"Curaçao", "curacao"},
		{"Köln", "koln"},
		{"  Niterói ", "niteroi"},
	}

	for _, p := range pairs {
		if Normalize(p[0]) != Normalize(p[1]) {
			t.Errorf("Normalize(%q) = %q, Normalize(%q) = %q; want equal",
				p[0], Normalize(p[0]), p[1], Normalize(p[1]))
		}
	}
}

func TestNormalizeAlnum(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty input", input: "", expected: ""},
		{name: "Postal code with dash", input: "01310-100", expected: "01310100"},
		{name: "Postal code plain", input: "01310100", expected: "01310100"},
		{name: "Spaces and case", input: " SW1A 1AA ", expected: "sw1a1aa"},
		{name: "Only punctuation", input: "--..--", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAlnum(tt.input); got != tt.expected {
				t.Errorf("NormalizeAlnum(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestHash(t *testing.T) {
	if got := Hash(""); got != "" {
		t.Errorf("Hash(\"\") = %q, want empty", got)
	}

	// Known SHA-256 vector.
	const want = "2c26b46b68ffc68ff99b453c1d30413413422d706483bfa0f98a5e886266e7ae"
	if got := Hash("foo"); got != want {
		t.Errorf("Hash(\"foo\") = %q, want %q", got, want)
	}

	if Hash("rio") != Hash("rio") {
		t.Error("Hash is not deterministic for repeated calls")
	}

	if Hash("rio") == Hash("sp") {
		t.Error("Hash collision between distinct values")
	}
}

func TestHash_NoCollisionsOverCorpus(t *testing.T) {
	gofakeit.Seed(42)

	seen := make(map[string]string, 2000)
	for i := 0; i < 2000; i++ {
		v := Normalize(gofakeit.City() + " " + gofakeit.Zip())
		h := Hash(v)
		if len(h) != 64 {
			t.Fatalf("Hash(%q) length = %d, want 64", v, len(h))
		}
		if prev, ok := seen[h]; ok && prev != v {
			t.Fatalf("collision: Hash(%q) == Hash(%q)", prev, v)
		}
		seen[h] = v
	}
}
