// Package dict maps numeric bank identifiers to human-readable names and
// carries the event marker pair for a capture campaign. The table is a YAML
// artifact maintained alongside the recipe set.
package dict

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"example.com/dstkit/internal/dst"
)

// Markers is the start/stop bank id pair that frames an event.
type Markers struct {
	Start uint32 `yaml:"start"`
	Stop  uint32 `yaml:"stop"`
}

type bankEntry struct {
	ID   uint32 `yaml:"id"`
	Name string `yaml:"name"`
}

type tableFile struct {
	EventMarkers Markers     `yaml:"eventMarkers"`
	Banks        []bankEntry `yaml:"banks"`
}

// Table resolves bank ids to names.
type Table struct {
	markers Markers
	names   map[uint32]string
}

// Load reads a dictionary artifact from disk.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("dictionary %s: %w", filepath.Base(path), err)
	}
	return t, nil
}

// Read parses a dictionary from r.
func Read(r io.Reader) (*Table, error) {
	var file tableFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}

	if file.EventMarkers.Start == 0 || file.EventMarkers.Stop == 0 {
		return nil, fmt.Errorf("missing event markers")
	}
	if file.EventMarkers.Start == file.EventMarkers.Stop {
		return nil, fmt.Errorf("start and stop markers are both %d", file.EventMarkers.Start)
	}

	t := &Table{
		markers: file.EventMarkers,
		names:   make(map[uint32]string, len(file.Banks)),
	}
	for i, b := range file.Banks {
		if b.ID == 0 || b.Name == "" {
			return nil, fmt.Errorf("bank entry %d: missing id or name", i)
		}
		if _, dup := t.names[b.ID]; dup {
			return nil, fmt.Errorf("duplicate bank id %d", b.ID)
		}
		t.names[b.ID] = b.Name
	}
	return t, nil
}

// Markers returns the event marker pair.
func (t *Table) Markers() Markers {
	return t.markers
}

// Name resolves a bank id, falling back to a synthesized placeholder so
// unknown banks stay identifiable in logs and reports.
func (t *Table) Name(id uint32) string {
	if t != nil {
		if name, ok := t.names[id]; ok {
			return name
		}
	}
	return fmt.Sprintf("UNKNOWN(%d)", id)
}

// Known reports whether the id appears in the table.
func (t *Table) Known(id uint32) bool {
	if t == nil {
		return false
	}
	_, ok := t.names[id]
	return ok
}

// Len returns the number of named banks.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.names)
}

// Describe renders a one-line summary of a reassembled bank.
func (t *Table) Describe(b dst.Bank) string {
	return fmt.Sprintf("<Bank %s id=%d v=%d size=%d>", t.Name(b.ID), b.ID, b.Version, len(b.Data))
}
