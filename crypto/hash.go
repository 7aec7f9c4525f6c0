package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// HashLength adalah panjang digest blok dalam byte.
const HashLength = 32

// Algorithm names a digest function usable for block hashing.
type Algorithm string

const (
	SHA256    Algorithm = "sha256"
	Keccak256 Algorithm = "keccak256"
)

// Hasher derives a fixed-size digest from an arbitrary byte sequence.
type Hasher func(data []byte) [HashLength]byte

// ZeroHash is the placeholder for an unmined block and the parent of block 0.
var ZeroHash = [HashLength]byte{}

var ErrUnknownAlgorithm = errors.New("unknown hash algorithm")

func Sha256Hash(data []byte) [HashLength]byte {
	return sha256.Sum256(data)
}

func Keccak256Hash(data []byte) [HashLength]byte {
	var h [HashLength]byte
	d := sha3.NewLegacyKeccak256()
	d.Write(data)
	d.Sum(h[:0])
	return h
}

// HasherFor returns the digest function registered under name.
// An empty name selects SHA-256.
func HasherFor(name Algorithm) (Hasher, error) {
	switch Algorithm(strings.ToLower(strings.TrimSpace(string(name)))) {
	case "", SHA256:
		return Sha256Hash, nil
	case Keccak256:
		return Keccak256Hash, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// Hex encodes h as a 0x-prefixed hex string.
func Hex(h [HashLength]byte) string {
	return hexutil.Encode(h[:])
}

// ParseHash decodes a 0x-prefixed 32-byte hex string.
func ParseHash(s string) ([HashLength]byte, error) {
	var h [HashLength]byte
	raw, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(raw) != HashLength {
		return h, fmt.Errorf("invalid hash %q: expected %d bytes, got %d", s, HashLength, len(raw))
	}
	copy(h[:], raw)
	return h, nil
}
