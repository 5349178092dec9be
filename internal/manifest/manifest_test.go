package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestBuildAndSave(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"capture.dst":    "raw blocks",
		"capture.dst.gz": "compressed blocks",
		"records.ndjson": "{}\n",
		"scan.json":      "{}",
		"scan.pdf":       "%PDF",
		"banks.yaml":     "eventMarkers: {}",
		"README":         "notes",
	}
	var paths []string
	for name, content := range files {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
		paths = append(paths, p)
	}

	m, err := Build(paths)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if m.ShaAlgo != "sha256" || len(m.Items) != len(files) {
		t.Fatalf("manifest = %+v", m)
	}

	types := make(map[string]string)
	for _, item := range m.Items {
		if item.Sha256 == "" || item.Size <= 0 {
			t.Fatalf("item %s missing hash or size", item.Path)
		}
		types[filepath.Base(item.Path)] = item.Type
	}
	want := map[string]string{
		"capture.dst":    "dst",
		"capture.dst.gz": "dst",
		"records.ndjson": "records",
		"scan.json":      "report",
		"scan.pdf":       "report",
		"banks.yaml":     "artifact",
		"README":         "other",
	}
	for name, typ := range want {
		if types[name] != typ {
			t.Fatalf("type of %s = %q, want %q", name, types[name], typ)
		}
	}

	out := filepath.Join(dir, "manifest.json")
	if err := Save(m, out); err != nil {
		t.Fatalf("Save: %v", err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var back Manifest
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(back.Items) != len(m.Items) {
		t.Fatalf("round trip lost items: %d vs %d", len(back.Items), len(m.Items))
	}
}

func TestBuildMissingFile(t *testing.T) {
	if _, err := Build([]string{filepath.Join(t.TempDir(), "absent.dst")}); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
