package dst

// CRC-CCITT as the DST container uses it: polynomial 0x1021, zero initial
// value, input bytes and the final word bit-reflected. Both the block trailer
// and the per-bank trailer store this checksum in the low 16 bits of a 4-byte
// little-endian word.

// nibble bit-reversal, used to build the byte reflection table
var reverseNibble = [16]byte{
	0x0, 0x8, 0x4, 0xC, 0x2, 0xA, 0x6, 0xE,
	0x1, 0x9, 0x5, 0xD, 0x3, 0xB, 0x7, 0xF,
}

var (
	reflectTable [256]byte
	crcTable     [256]uint16
)

func init() {
	for j := 0; j < 256; j++ {
		reflectTable[j] = reverseNibble[j&0x0F]<<4 | reverseNibble[(j>>4)&0x0F]
	}
	for j := 0; j < 256; j++ {
		crcTable[j] = crcRounds(uint16(j) << 8)
	}
}

func crcRounds(crc uint16) uint16 {
	for i := 0; i < 8; i++ {
		if crc&0x8000 != 0 {
			crc = crc<<1 ^ 0x1021
		} else {
			crc <<= 1
		}
	}
	return crc
}

// Checksum computes the reflected CRC-CCITT over p.
func Checksum(p []byte) uint16 {
	var state uint16
	for _, b := range p {
		idx := reflectTable[b] ^ byte(state>>8)
		state = crcTable[idx] ^ uint16(state&0xFF)<<8
	}
	return uint16(reflectTable[state>>8]) | uint16(reflectTable[state&0xFF])<<8
}
