package dst

import (
	"encoding/binary"
	"errors"
	"io"

	"example.com/dstkit/internal/common"
)

// Stream symbols: a 0x60 sentinel followed by a one-byte verb. Any byte
// outside an opcode pair is skipped until the next sentinel, which makes the
// stream self-synchronizing. Verb values match the original writer.
const (
	opcodeSentinel = 0x60

	verbStartBlock       = 97
	verbEndBlockLogical  = 98
	verbEndBlockPhysical = 99
	verbFiller           = 100

	verbStartBank = 7
	verbContinue  = 8
	verbEndBank   = 14
	verbToBeContd = 15
)

// BlockSource is the verified-block producer the assembler consumes;
// *BlockReader satisfies it.
type BlockSource interface {
	Next() (Block, error)
}

// BankAssembler runs the opcode state machine over the concatenated block
// payloads and yields completed banks. No partial bank is ever returned.
type BankAssembler struct {
	stream  byteStream
	started bool
	buf     []byte
	done    bool
	metrics *common.Metrics
}

func NewBankAssembler(src BlockSource) *BankAssembler {
	return &BankAssembler{stream: byteStream{src: src}}
}

// SetMetrics attaches a metrics recorder counting completed banks.
func (a *BankAssembler) SetMetrics(m *common.Metrics) {
	a.metrics = m
}

// Next returns the next completed bank. It returns io.EOF when the stream
// ends, including when it ends in the middle of a fixed-size field or segment
// (the format's expected trailing-garbage tolerance). Block-level errors and
// bank integrity failures propagate and end iteration.
func (a *BankAssembler) Next() (Bank, error) {
	if a.done {
		return Bank{}, io.EOF
	}
	for {
		b, err := a.stream.readByte()
		if err != nil {
			return a.finish(err)
		}
		if b != opcodeSentinel {
			continue
		}
		verb, err := a.stream.readByte()
		if err != nil {
			return a.finish(err)
		}

		switch verb {
		case verbStartBlock:
			// block number, unused in a concatenated view
			if _, err := a.stream.readUint32(); err != nil {
				return a.finish(err)
			}
		case verbEndBlockLogical, verbEndBlockPhysical, verbFiller:
			// framing markers carry no bank state
		case verbStartBank:
			if a.started && len(a.buf) > 0 {
				common.Logf("discarding unfinished bank of %d bytes at new START_BANK", len(a.buf))
			}
			a.started = true
			a.buf = a.buf[:0]
			if err := a.readSegment(); err != nil {
				return a.finish(err)
			}
		case verbContinue:
			if !a.started {
				common.Logf("CONTINUE with no open bank, starting a fresh one")
				a.started = true
				a.buf = a.buf[:0]
			}
			if err := a.readSegment(); err != nil {
				return a.finish(err)
			}
		case verbToBeContd:
			// segment suspended; five trailing bytes to skip, bank stays open
			if err := a.stream.skip(5); err != nil {
				return a.finish(err)
			}
		case verbEndBank:
			word, err := a.stream.readUint32()
			if err != nil {
				return a.finish(err)
			}
			expected := uint16(word)
			actual := Checksum(a.buf)
			if actual != expected {
				a.done = true
				return Bank{}, &BankCRCMismatchError{Expected: expected, Actual: actual}
			}
			if len(a.buf) < bankHeaderLen {
				a.done = true
				return Bank{}, ErrBankTooShort
			}
			bank := Bank{
				ID:      binary.LittleEndian.Uint32(a.buf[0:4]),
				Version: binary.LittleEndian.Uint32(a.buf[4:8]),
				Data:    a.buf,
			}
			// ownership of the buffer moves to the caller
			a.buf = nil
			a.started = false
			if a.metrics != nil {
				a.metrics.IncBank()
			}
			return bank, nil
		default:
			// unknown verb: tolerated for forward compatibility
		}
	}
}

// readSegment consumes one length-prefixed chunk and appends it to the open
// bank buffer.
func (a *BankAssembler) readSegment() error {
	length, err := a.stream.readUint32()
	if err != nil {
		return err
	}
	start := len(a.buf)
	a.buf = append(a.buf, make([]byte, length)...)
	return a.stream.readFull(a.buf[start:])
}

// finish maps benign end-of-data onto io.EOF and propagates everything else.
func (a *BankAssembler) finish(err error) (Bank, error) {
	a.done = true
	if errors.Is(err, io.EOF) {
		if a.started && len(a.buf) > 0 {
			common.Logf("stream ended with an unfinished bank of %d bytes", len(a.buf))
		}
		return Bank{}, io.EOF
	}
	return Bank{}, err
}

// byteStream presents the ordered block payloads as one continuous byte
// sequence.
type byteStream struct {
	src BlockSource
	buf []byte
	pos int
	eof bool
}

func (s *byteStream) fill() error {
	for !s.eof && s.pos >= len(s.buf) {
		blk, err := s.src.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.buf = nil
				s.pos = 0
				s.eof = true
				return nil
			}
			return err
		}
		s.buf = blk.Payload
		s.pos = 0
	}
	return nil
}

func (s *byteStream) readByte() (byte, error) {
	if err := s.fill(); err != nil {
		return 0, err
	}
	if s.eof {
		return 0, io.EOF
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

func (s *byteStream) readFull(p []byte) error {
	for filled := 0; filled < len(p); {
		if err := s.fill(); err != nil {
			return err
		}
		if s.eof {
			return io.EOF
		}
		n := copy(p[filled:], s.buf[s.pos:])
		s.pos += n
		filled += n
	}
	return nil
}

func (s *byteStream) readUint32() (uint32, error) {
	var b [4]byte
	if err := s.readFull(b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (s *byteStream) skip(n int) error {
	var scratch [8]byte
	for n > 0 {
		take := n
		if take > len(scratch) {
			take = len(scratch)
		}
		if err := s.readFull(scratch[:take]); err != nil {
			return err
		}
		n -= take
	}
	return nil
}
