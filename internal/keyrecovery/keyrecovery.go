// Package keyrecovery locates the AES key material IL2CPP embeds in its own
// compiled code. It looks for a fixed five-instruction window that builds a
// 64-bit XOR mask into X1 (MOVZ/?/MOVK/MOVK/MOVK), then follows the nearest
// forward BL to the function that loads the real AES key via an
// ADRP/ADD page-relative address.
package keyrecovery

import (
	"errors"
	"fmt"

	"github.com/kestrelgs/pb2proto/internal/arm64"
	"github.com/kestrelgs/pb2proto/internal/elfimage"
)

// ErrKeyXorNotFound is returned when the five-instruction key_xor pattern
// does not occur anywhere in .text.
var ErrKeyXorNotFound = errors.New("keyrecovery: key_xor pattern not found")

// ErrBranchNotFound is returned when no BL instruction forward of the
// key_xor site branches to a valid in-image target.
var ErrBranchNotFound = errors.New("keyrecovery: no reachable BL after key_xor")

// ErrKeyNotFound is returned when no ADRP/ADD pair resolving to a readable
// 16-byte region is found at the BL target.
var ErrKeyNotFound = errors.New("keyrecovery: AES key bytes not found")

// CapturedKeyMaterial is everything downstream decryption needs: the raw
// AES-128 key as embedded in the binary, the XOR mask recovered from the
// key_xor instruction window, and the addresses each was found at.
type CapturedKeyMaterial struct {
	KeyXor                  uint64
	AESKey                  [16]byte
	KeyXorInstructionOffset int // byte offset into .text of the window's first instruction
	KeyVA                   uint64
}

// Recover runs the full key_xor + AES key recovery pipeline against img's
// .text section.
func Recover(img *elfimage.Image) (CapturedKeyMaterial, error) {
	instructions := img.Instructions(".text")
	if len(instructions) == 0 {
		return CapturedKeyMaterial{}, fmt.Errorf("keyrecovery: no .text instructions decoded")
	}

	xorIndex, keyXor, ok := findKeyXor(instructions)
	if !ok {
		return CapturedKeyMaterial{}, ErrKeyXorNotFound
	}

	blIndex, ok := findForwardBranch(instructions, xorIndex)
	if !ok {
		return CapturedKeyMaterial{}, ErrBranchNotFound
	}

	textStart, _, ok := img.SectionRange(".text")
	if !ok {
		return CapturedKeyMaterial{}, fmt.Errorf("keyrecovery: .text section range unavailable")
	}

	keyVA, aesKey, ok := findAESKey(img, instructions, blIndex, textStart)
	if !ok {
		return CapturedKeyMaterial{}, ErrKeyNotFound
	}

	return CapturedKeyMaterial{
		KeyXor:                  keyXor,
		AESKey:                  aesKey,
		KeyXorInstructionOffset: xorIndex * 4,
		KeyVA:                   keyVA,
	}, nil
}

// findKeyXor scans every five-instruction window for:
//
//	MOVZ X1, #imm0
//	<any instruction>                 <- open question: left unconstrained
//	MOVK X1, #imm2, LSL 16
//	MOVK X1, #imm3, LSL 32
//	MOVK X1, #imm4, LSL 48
//
// The second slot is deliberately never decoded or matched against any
// mnemonic: it is there in every observed binary but its identity varies,
// so the pattern must stay permissive there rather than assume a shape.
func findKeyXor(instructions []uint32) (index int, keyXor uint64, ok bool) {
	for i := 0; i+5 <= len(instructions); i++ {
		movz, ok := arm64.ParseMovz(instructions[i])
		if !ok || movz.Rd != arm64.X1 || movz.HW != arm64.Lsl0 {
			continue
		}

		mk1, ok := arm64.ParseMovk(instructions[i+2])
		if !ok || mk1.Rd != arm64.X1 || mk1.HW != arm64.Lsl16 {
			continue
		}

		mk2, ok := arm64.ParseMovk(instructions[i+3])
		if !ok || mk2.Rd != arm64.X1 || mk2.HW != arm64.Lsl32 {
			continue
		}

		mk3, ok := arm64.ParseMovk(instructions[i+4])
		if !ok || mk3.Rd != arm64.X1 || mk3.HW != arm64.Lsl48 {
			continue
		}

		value := uint64(mk3.Imm16)<<48 | uint64(mk2.Imm16)<<32 | uint64(mk1.Imm16)<<16 | uint64(movz.Imm16)
		return i, value, true
	}
	return 0, 0, false
}

// findForwardBranch scans forward from fromIndex for the first BL whose
// computed target instruction index lies within the decoded instruction
// stream, and returns that target index.
func findForwardBranch(instructions []uint32, fromIndex int) (targetIndex int, ok bool) {
	for i := fromIndex; i < len(instructions); i++ {
		bl, ok := arm64.ParseBl(instructions[i])
		if !ok {
			continue
		}
		target := int64(i) + bl.Offset/4
		if target >= 0 && target < int64(len(instructions)) {
			return int(target), true
		}
	}
	return 0, false
}

// findAESKey scans forward from blTarget for the first adjacent ADRP/ADD
// pair addressing the same register, resolves the page-relative VA it
// computes, and reads 16 bytes from there.
func findAESKey(img *elfimage.Image, instructions []uint32, blTarget int, textFileStart int) (uint64, [16]byte, bool) {
	for i := blTarget; i+2 <= len(instructions); i++ {
		adrp, ok := arm64.ParseAdrp(instructions[i])
		if !ok {
			continue
		}
		add, ok := arm64.ParseAddImmediate(instructions[i+1])
		if !ok || add.Rn != adrp.Rd {
			continue
		}

		adrpFileOffset := uint64(textFileStart + i*4)
		adrpVA, ok := img.FileOffsetToVA(adrpFileOffset)
		if !ok {
			continue
		}

		pageBase := adrpVA &^ 0xfff
		keyVA := uint64(int64(pageBase) + adrp.ComputeImm() + int64(add.Immediate()))

		raw, ok := img.ReadBytesAtVA(keyVA, 16)
		if !ok {
			continue
		}

		var key [16]byte
		copy(key[:], raw)
		return keyVA, key, true
	}
	return 0, [16]byte{}, false
}
