// Package metacrypt decrypts an IL2CPP global-metadata blob using the AES
// key material recovered by internal/keyrecovery. The container is a
// 4-byte little-endian ciphertext length followed by the ciphertext itself;
// the real AES key is derived from the embedded key by XOR-cycling it
// against the recovered key_xor mask, and the stream is AES-128-CTR with a
// fixed low-order IV.
package metacrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTooShort is returned when data is too small to contain the 4-byte
// length prefix.
var ErrTooShort = errors.New("metacrypt: data shorter than length prefix")

// ErrLengthMismatch is returned when the length prefix does not match the
// remaining data.
var ErrLengthMismatch = errors.New("metacrypt: declared ciphertext length does not match data")

// DeriveKey XOR-cycles the embedded AES key against keyXor's little-endian
// bytes, repeating the 8-byte mask across all 16 key bytes.
func DeriveKey(aesKey [16]byte, keyXor uint64) [16]byte {
	var xorBytes [8]byte
	binary.LittleEndian.PutUint64(xorBytes[:], keyXor)

	var derived [16]byte
	for i := range derived {
		derived[i] = aesKey[i] ^ xorBytes[i%8]
	}
	return derived
}

// iv returns the fixed counter-mode IV: the big-endian encoding of the
// integer 1 in the low 8 bytes, zero in the high 8 bytes.
func iv() [16]byte {
	var v [16]byte
	binary.BigEndian.PutUint64(v[8:], 1)
	return v
}

// DecryptMetadata unwraps the length-prefixed container and decrypts the
// enclosed global-metadata blob into a new buffer, returning the plaintext.
func DecryptMetadata(data []byte, aesKey [16]byte, keyXor uint64) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrTooShort
	}

	ciphertextLen := binary.LittleEndian.Uint32(data[0:4])
	if len(data) != 4+int(ciphertextLen) {
		return nil, ErrLengthMismatch
	}

	ciphertext := data[4:]
	derivedKey := DeriveKey(aesKey, keyXor)

	block, err := aes.NewCipher(derivedKey[:])
	if err != nil {
		return nil, fmt.Errorf("metacrypt: build AES cipher: %w", err)
	}

	ivBytes := iv()
	stream := cipher.NewCTR(block, ivBytes[:])

	plaintext := make([]byte, len(ciphertext))
	stream.XORKeyStream(plaintext, ciphertext)

	return plaintext, nil
}
