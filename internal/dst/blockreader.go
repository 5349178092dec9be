package dst

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"example.com/dstkit/internal/common"
)

// BlockReader splits a byte stream into fixed BlockLen frames and yields the
// CRC-verified payload of each in stream order. It is a forward-only iterator;
// reopen the file to restart.
type BlockReader struct {
	r    io.Reader
	file *os.File
	gz   *gzip.Reader

	index   int
	metrics *common.Metrics
}

// OpenBlockReader opens the file at path, transparently decompressing gzip
// input detected by a .gz suffix or the gzip magic bytes.
func OpenBlockReader(path string) (*BlockReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	compressed := strings.HasSuffix(path, ".gz")
	if !compressed {
		var magic [2]byte
		n, err := io.ReadFull(f, magic[:])
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			f.Close()
			return nil, err
		}
		compressed = n == 2 && magic[0] == 0x1F && magic[1] == 0x8B
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return nil, err
		}
	}
	br := &BlockReader{file: f, r: f}
	if compressed {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip stream: %w", err)
		}
		br.gz = gz
		br.r = gz
	}
	return br, nil
}

// NewBlockReader wraps an already-open byte stream. Close releases nothing in
// this mode; the caller owns r.
func NewBlockReader(r io.Reader) *BlockReader {
	return &BlockReader{r: r}
}

// SetMetrics attaches a metrics recorder. For uncompressed file-backed
// readers the total size is known up front.
func (br *BlockReader) SetMetrics(m *common.Metrics) {
	br.metrics = m
	if br.metrics == nil || br.file == nil || br.gz != nil {
		return
	}
	if info, err := br.file.Stat(); err == nil {
		br.metrics.SetTotalBytes(info.Size())
	}
}

// Next returns the next verified block. It returns io.EOF at a clean end of
// stream, ErrShortBlock on a truncated final frame, and *CRCMismatchError on
// an integrity failure; all errors end iteration.
func (br *BlockReader) Next() (Block, error) {
	if br.r == nil {
		return Block{}, io.EOF
	}
	frame := make([]byte, BlockLen)
	n, err := io.ReadFull(br.r, frame)
	if errors.Is(err, io.EOF) {
		return Block{}, io.EOF
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return Block{}, fmt.Errorf("%w: block %d has %d of %d bytes", ErrShortBlock, br.index, n, BlockLen)
	}
	if err != nil {
		return Block{}, err
	}

	payload := frame[:BlockPayloadLen]
	// 4-byte little-endian trailer; only the low 16 bits carry the checksum,
	// the high half is reserved and ignored.
	expected := uint16(binary.LittleEndian.Uint32(frame[BlockPayloadLen:]))
	actual := Checksum(payload)
	if actual != expected {
		return Block{}, &CRCMismatchError{Block: br.index, Expected: expected, Actual: actual}
	}

	blk := Block{Index: br.index, Payload: payload}
	br.index++
	if br.metrics != nil {
		br.metrics.AddBlock(BlockLen)
	}
	return blk, nil
}

// Close releases the underlying stream. Safe to call more than once.
func (br *BlockReader) Close() error {
	var first error
	if br.gz != nil {
		if err := br.gz.Close(); err != nil {
			first = err
		}
		br.gz = nil
	}
	if br.file != nil {
		if err := br.file.Close(); err != nil && first == nil {
			first = err
		}
		br.file = nil
	}
	br.r = nil
	return first
}
