package fpe

import "encoding/binary"

// code is the pre-assembled floating-point-emulator blob blitted into
// guest memory at Start. The real RISCiX FPE image (original_source's
// armfpe.h) is proprietary firmware not present in this repository's
// sources: code is a synthetic placeholder built at init time that
// satisfies the same contract the installer relies on (some filler words,
// then the entry address, then SentinelWord) so Install's scan-for-sentinel
// and branch-patch algorithm is fully exercised end to end. A production
// build substitutes a real extracted FPE image's bytes here without
// touching Install itself.
var code []byte

// placeholderEntryOffset is the offset (from Start) of the placeholder
// blob's single handler routine. The word stored immediately before
// SentinelWord is the absolute guest address of that routine, matching the
// real FPE blob's convention (the entry word is a branch target, not a
// Start-relative offset).
const placeholderEntryOffset = 0x20

func init() {
	words := make([]uint32, placeholderEntryOffset/4+2)
	words[len(words)-2] = Start + placeholderEntryOffset
	words[len(words)-1] = SentinelWord

	code = make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(code[i*4:], w)
	}
}
