package metacrypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/binary"
	"testing"
)

func TestDeriveKeyCycles(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i)
	}
	keyXor := uint64(0x0102030405060708)

	got := DeriveKey(key, keyXor)

	var xorBytes [8]byte
	binary.LittleEndian.PutUint64(xorBytes[:], keyXor)

	for i := 0; i < 16; i++ {
		want := key[i] ^ xorBytes[i%8]
		if got[i] != want {
			t.Fatalf("byte %d: got 0x%02x want 0x%02x", i, got[i], want)
		}
	}
}

// TestDecryptMetadataZeroKeyCounterOne checks the key=0, key_xor=0, counter
// start 00...01 property named in the spec: the keystream for that
// configuration must equal AES-128 encrypting the IV block directly under
// the all-zero key, independent of metacrypt's own container handling.
func TestDecryptMetadataZeroKeyCounterOne(t *testing.T) {
	var zeroKey [16]byte

	block, err := aes.NewCipher(zeroKey[:])
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}

	wantIV := [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1}
	var wantKeystream [16]byte
	block.Encrypt(wantKeystream[:], wantIV[:])

	ciphertext := make([]byte, 16) // all-zero plaintext under CTR == the raw keystream
	container := make([]byte, 4+len(ciphertext))
	binary.LittleEndian.PutUint32(container[0:4], uint32(len(ciphertext)))
	copy(container[4:], ciphertext)

	plaintext, err := DecryptMetadata(container, zeroKey, 0)
	if err != nil {
		t.Fatalf("DecryptMetadata: %v", err)
	}
	if !bytes.Equal(plaintext, wantKeystream[:]) {
		t.Fatalf("got %x want %x", plaintext, wantKeystream)
	}
}

func TestDecryptMetadataRoundTrip(t *testing.T) {
	var aesKey [16]byte
	for i := range aesKey {
		aesKey[i] = byte(0xA0 + i)
	}
	keyXor := uint64(0xDEADBEEFCAFEF00D)

	plaintext := []byte("this is the decrypted IL2CPP global-metadata payload")

	derived := DeriveKey(aesKey, keyXor)
	block, err := aes.NewCipher(derived[:])
	if err != nil {
		t.Fatalf("aes.NewCipher: %v", err)
	}
	ivBytes := iv()
	stream := cipher.NewCTR(block, ivBytes[:])
	ciphertext := make([]byte, len(plaintext))
	stream.XORKeyStream(ciphertext, plaintext)

	container := make([]byte, 4+len(ciphertext))
	binary.LittleEndian.PutUint32(container[0:4], uint32(len(ciphertext)))
	copy(container[4:], ciphertext)

	got, err := DecryptMetadata(container, aesKey, keyXor)
	if err != nil {
		t.Fatalf("DecryptMetadata: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("got %q want %q", got, plaintext)
	}
}

func TestDecryptMetadataTooShort(t *testing.T) {
	if _, err := DecryptMetadata([]byte{1, 2, 3}, [16]byte{}, 0); err != ErrTooShort {
		t.Fatalf("got %v want ErrTooShort", err)
	}
}

func TestDecryptMetadataLengthMismatch(t *testing.T) {
	data := make([]byte, 4+10)
	binary.LittleEndian.PutUint32(data[0:4], 99)
	if _, err := DecryptMetadata(data, [16]byte{}, 0); err != ErrLengthMismatch {
		t.Fatalf("got %v want ErrLengthMismatch", err)
	}
}
