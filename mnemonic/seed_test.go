package mnemonic

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"flintwallet.org/flint/wallet"
)

func TestNew(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		words, err := New()
		if err != nil {
			t.Fatal(err)
		}
		if n := len(strings.Fields(words)); n != longPhraseWords {
			t.Fatalf("expected %d words, got %d", longPhraseWords, n)
		}
		if err := Validate(words); err != nil {
			t.Fatalf("generated phrase failed validation: %v", err)
		}
		if seen[words] {
			t.Fatal("duplicate phrase generated")
		}
		seen[words] = true
	}
}

func TestNormalize(t *testing.T) {
	raw := "  Abandon\tABANDON abandon\n abandon abandon abandon " +
		"abandon abandon abandon abandon abandon  About "
	want := "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"
	if got := Normalize(raw); got != want {
		t.Fatalf("Normalize returned %q, wanted %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	valid := "abandon abandon abandon abandon abandon abandon " +
		"abandon abandon abandon abandon abandon about"
	if err := Validate(valid); err != nil {
		t.Fatalf("valid 12-word phrase rejected: %v", err)
	}

	tests := []struct {
		name, words string
	}{
		{"empty", ""},
		{"wrong count", "abandon abandon abandon"},
		{"unknown word", strings.Replace(valid, "about", "blah", 1)},
		{"bad checksum", strings.Replace(valid, "about", "abandon", 1)},
	}
	for _, tt := range tests {
		err := Validate(tt.words)
		if err == nil {
			t.Fatalf("%s: no error", tt.name)
		}
		if !errors.Is(err, wallet.ErrInvalidMnemonic) {
			t.Fatalf("%s: error is not ErrInvalidMnemonic: %v", tt.name, err)
		}
	}
}

func TestEntropyRoundTrip(t *testing.T) {
	words, err := New()
	if err != nil {
		t.Fatal(err)
	}
	entropy, err := Entropy(words)
	if err != nil {
		t.Fatal(err)
	}
	if len(entropy) != entropyBits/8 {
		t.Fatalf("expected %d entropy bytes, got %d", entropyBits/8, len(entropy))
	}
	reEntropy, err := Entropy(Normalize(words))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(entropy, reEntropy) {
		t.Fatal("normalization changed the encoded entropy")
	}
}
