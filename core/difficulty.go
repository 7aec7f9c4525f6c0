package core

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

// DifficultyBits is the width of a difficulty value and of the hash window
// it is compared against.
const DifficultyBits = 128

var ErrDifficultyTooLarge = errors.New("difficulty exceeds 128 bits")

// DifficultyFromHash reads bytes 16..31 of hash as a little-endian 128-bit integer.
func DifficultyFromHash(hash [32]byte) uint256.Int {
	var v uint256.Int
	v[0] = binary.LittleEndian.Uint64(hash[16:24])
	v[1] = binary.LittleEndian.Uint64(hash[24:32])
	return v
}

// CheckDifficulty reports whether hash satisfies difficulty. Difficulty is an
// upper bound on the hash window, so a larger difficulty is easier to meet.
func CheckDifficulty(hash [32]byte, difficulty *uint256.Int) bool {
	window := DifficultyFromHash(hash)
	return difficulty.Gt(&window)
}

// ParseDifficulty accepts decimal or 0x-prefixed hex, with optional '_'
// separators after a base prefix.
func ParseDifficulty(s string) (uint256.Int, error) {
	var d uint256.Int
	s = strings.TrimSpace(s)
	if s == "" {
		return d, errors.New("difficulty is empty")
	}
	b, ok := new(big.Int).SetString(s, 0)
	if !ok || b.Sign() < 0 {
		return d, fmt.Errorf("invalid difficulty %q", s)
	}
	if b.BitLen() > DifficultyBits {
		return d, fmt.Errorf("%w: %s", ErrDifficultyTooLarge, s)
	}
	d.SetFromBig(b)
	return d, nil
}

// FormatDifficulty prints d as 0x-prefixed hex padded to 32 digits.
func FormatDifficulty(d *uint256.Int) string {
	return fmt.Sprintf("0x%016x%016x", d[1], d[0])
}

func putDifficulty(buf []byte, d *uint256.Int) {
	binary.LittleEndian.PutUint64(buf[0:8], d[0])
	binary.LittleEndian.PutUint64(buf[8:16], d[1])
}
