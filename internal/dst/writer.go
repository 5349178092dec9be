package dst

import (
	"encoding/binary"
	"fmt"
)

// Builders for synthetic DST streams. The production pipeline is read-only;
// these exist for the sample generator and tests.

// BankPayload prefixes content with the eight-byte id+version header every
// bank payload starts with.
func BankPayload(id, version uint32, content []byte) []byte {
	payload := make([]byte, bankHeaderLen, bankHeaderLen+len(content))
	binary.LittleEndian.PutUint32(payload[0:4], id)
	binary.LittleEndian.PutUint32(payload[4:8], version)
	return append(payload, content...)
}

// AppendBank encodes payload as a single-segment bank with its CRC trailer.
func AppendBank(stream []byte, payload []byte) []byte {
	return AppendBankSegments(stream, payload)
}

// AppendBankSegments encodes one bank split across the given segments, with a
// TO_BE_CONTD suspension between consecutive segments. The CRC trailer covers
// the concatenated payload.
func AppendBankSegments(stream []byte, segments ...[]byte) []byte {
	var full []byte
	for i, seg := range segments {
		verb := byte(verbStartBank)
		if i > 0 {
			verb = verbContinue
		}
		stream = append(stream, opcodeSentinel, verb)
		stream = binary.LittleEndian.AppendUint32(stream, uint32(len(seg)))
		stream = append(stream, seg...)
		full = append(full, seg...)
		if i < len(segments)-1 {
			stream = append(stream, opcodeSentinel, verbToBeContd)
			stream = append(stream, make([]byte, 5)...)
		}
	}
	stream = append(stream, opcodeSentinel, verbEndBank)
	return binary.LittleEndian.AppendUint32(stream, uint32(Checksum(full)))
}

// AppendStartBlockMarker emits the block framing marker the original writer
// places at the head of a block's logical content.
func AppendStartBlockMarker(stream []byte, blockNumber uint32) []byte {
	stream = append(stream, opcodeSentinel, verbStartBlock)
	return binary.LittleEndian.AppendUint32(stream, blockNumber)
}

// AppendEndBlockMarker emits the physical end-of-block marker.
func AppendEndBlockMarker(stream []byte) []byte {
	return append(stream, opcodeSentinel, verbEndBlockPhysical)
}

// BuildBlock frames one payload of exactly BlockPayloadLen bytes with its CRC
// trailer.
func BuildBlock(payload []byte) ([]byte, error) {
	if len(payload) != BlockPayloadLen {
		return nil, fmt.Errorf("block payload must be %d bytes, got %d", BlockPayloadLen, len(payload))
	}
	frame := make([]byte, 0, BlockLen)
	frame = append(frame, payload...)
	return binary.LittleEndian.AppendUint32(frame, uint32(Checksum(payload))), nil
}

// BuildBlocks packs a logical bank stream into whole CRC-trailed blocks,
// padding the final block with FILLER opcodes.
func BuildBlocks(stream []byte) ([]byte, error) {
	out := make([]byte, 0, (len(stream)/BlockPayloadLen+1)*BlockLen)
	for len(stream) > 0 {
		payload := make([]byte, 0, BlockPayloadLen)
		take := len(stream)
		if take > BlockPayloadLen {
			take = BlockPayloadLen
		}
		payload = append(payload, stream[:take]...)
		stream = stream[take:]
		for len(payload)+2 <= BlockPayloadLen {
			payload = append(payload, opcodeSentinel, verbFiller)
		}
		if len(payload) < BlockPayloadLen {
			payload = append(payload, 0x00)
		}
		frame, err := BuildBlock(payload)
		if err != nil {
			return nil, err
		}
		out = append(out, frame...)
	}
	return out, nil
}
