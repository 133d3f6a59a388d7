// This code is available on the terms of the project LICENSE.md file,
// also available online at https://blueoakcouncil.org/license/1.0.0.

// Package mnemonic handles the wallet's recovery phrase: generation from
// fresh entropy, normalization of user-supplied phrases, and checksum
// validation. The phrase encoding is BIP-39.
package mnemonic

import (
	"fmt"
	"strings"

	"flintwallet.org/flint/encode"
	"flintwallet.org/flint/wallet"
	"github.com/bisoncraft/go-bip39"
)

const (
	// entropyBits is the entropy carried by a newly generated phrase.
	entropyBits = 256
	// longPhraseWords is the word count of a generated phrase.
	longPhraseWords = 24
	// shortPhraseWords is the shorter word count accepted on import.
	shortPhraseWords = 12
)

// New generates a new recovery phrase from 256 bits of fresh entropy.
func New() (string, error) {
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("entropy generation error: %w", err)
	}
	defer encode.ClearBytes(entropy)
	words, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("mnemonic encoding error: %w", err)
	}
	return words, nil
}

// Normalize lower-cases the phrase and collapses all interior whitespace to
// single spaces. Normalize does not validate. Run user input through
// Normalize before Validate, storage, or comparison.
func Normalize(words string) string {
	return strings.Join(strings.Fields(strings.ToLower(words)), " ")
}

// Validate checks the word count, the word list membership and the BIP-39
// checksum of an already-normalized phrase. A nil return means the phrase is
// usable as a wallet credential.
func Validate(words string) error {
	n := len(strings.Fields(words))
	if n != shortPhraseWords && n != longPhraseWords {
		return wallet.NewError(wallet.ErrInvalidMnemonic,
			fmt.Sprintf("expected %d or %d words, got %d", shortPhraseWords, longPhraseWords, n))
	}
	if !bip39.IsMnemonicValid(words) {
		return wallet.NewError(wallet.ErrInvalidMnemonic, "unknown word or bad checksum")
	}
	return nil
}

// Entropy extracts the raw entropy encoded by the phrase. The caller should
// zero the returned bytes when done with them.
func Entropy(words string) ([]byte, error) {
	entropy, err := bip39.EntropyFromMnemonic(words)
	if err != nil {
		return nil, wallet.NewError(wallet.ErrInvalidMnemonic, err.Error())
	}
	return entropy, nil
}
