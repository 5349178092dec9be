// Package report renders the results of a decode run: a machine-readable scan
// summary, an NDJSON record stream and a printable PDF.
package report

import (
	"bufio"
	"encoding/json"
	"os"
	"sort"

	"example.com/dstkit/internal/dict"
)

// BankCount is one row of the per-bank-type census.
type BankCount struct {
	ID    uint32 `json:"id"`
	Name  string `json:"name"`
	Count int64  `json:"count"`
}

// ScanReport summarizes one pass over a capture file.
type ScanReport struct {
	File       string      `json:"file"`
	Sha256     string      `json:"sha256"`
	SizeBytes  int64       `json:"sizeBytes"`
	Blocks     int64       `json:"blocks"`
	Banks      int64       `json:"banks"`
	Events     int64       `json:"events"`
	BankCounts []BankCount `json:"bankCounts,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// SaveJSON writes the report as indented JSON.
func SaveJSON(rep ScanReport, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

// LoadJSON reads a previously saved scan report.
func LoadJSON(path string) (ScanReport, error) {
	var rep ScanReport
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	if err := json.Unmarshal(b, &rep); err != nil {
		return rep, err
	}
	return rep, nil
}

// Tally counts reassembled banks by id.
type Tally struct {
	counts map[uint32]int64
}

func NewTally() *Tally {
	return &Tally{counts: make(map[uint32]int64)}
}

func (t *Tally) Add(id uint32) {
	t.counts[id]++
}

// Counts resolves names through the table and returns rows ordered by
// frequency, then id for stable output.
func (t *Tally) Counts(table *dict.Table) []BankCount {
	rows := make([]BankCount, 0, len(t.counts))
	for id, n := range t.counts {
		rows = append(rows, BankCount{ID: id, Name: table.Name(id), Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// RecordWriter streams decoded records to an NDJSON file, one JSON document
// per line.
type RecordWriter struct {
	f   *os.File
	buf *bufio.Writer
	enc *json.Encoder
}

func NewRecordWriter(path string) (*RecordWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	buf := bufio.NewWriter(f)
	return &RecordWriter{f: f, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *RecordWriter) Write(v any) error {
	return w.enc.Encode(v)
}

func (w *RecordWriter) Close() error {
	if err := w.buf.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}
