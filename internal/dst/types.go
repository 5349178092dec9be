package dst

import (
	"errors"
	"fmt"
)

const (
	// BlockLen is the fixed on-disk frame size, matching the original
	// writer's BlockLen constant.
	BlockLen = 32000
	// BlockPayloadLen is the checked payload portion of a block; the last
	// four bytes of a frame carry the CRC trailer.
	BlockPayloadLen = BlockLen - 4

	bankHeaderLen = 8
)

// Block is one verified frame of the underlying stream. Payload excludes the
// CRC trailer.
type Block struct {
	Index   int
	Payload []byte
}

// Bank is a reassembled logical record. Data holds the full payload including
// the eight header bytes the ID and Version were parsed from; the CRC trailer
// is verified before construction and never included.
type Bank struct {
	ID      uint32
	Version uint32
	Data    []byte
}

// Event is an ordered group of banks bounded by configured start/stop marker
// bank identifiers.
type Event struct {
	Banks []Bank
}

var (
	ErrShortBlock   = errors.New("short block: truncated file")
	ErrBankTooShort = errors.New("bank too short to contain id and version")
)

// CRCMismatchError reports a block whose trailer checksum does not match the
// checksum computed over its payload.
type CRCMismatchError struct {
	Block    int
	Expected uint16
	Actual   uint16
}

func (e *CRCMismatchError) Error() string {
	return fmt.Sprintf("crc mismatch at block %d: expected 0x%04X, got 0x%04X", e.Block, e.Expected, e.Actual)
}

// BankCRCMismatchError reports a reassembled bank whose trailing checksum does
// not match the checksum of the accumulated payload.
type BankCRCMismatchError struct {
	Expected uint16
	Actual   uint16
}

func (e *BankCRCMismatchError) Error() string {
	return fmt.Sprintf("bank crc mismatch: expected 0x%04X, got 0x%04X", e.Expected, e.Actual)
}
