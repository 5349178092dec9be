package recipe

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const trackerYAML = `bank: STPLN
bankId: 15043
schema:
  maxeye: i32
  xcore: f64
ops:
  - field: bankid
    type: i32
  - field: bankversion
    type: i32
  - field: maxeye
    type: i32
  - field: if_eye
    type: i32
    count: ${maxeye}
  - field: xcore
    type: f64
    loop:
      var: ieye
      bound: ${maxeye}
    guard: if_eye[ieye] == 1
  - field: extra
    type: i32
    cond: bankversion >= 2
`

func writeRecipe(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadRecipe(t *testing.T) {
	path := writeRecipe(t, t.TempDir(), "stpln.yaml", trackerYAML)
	rec, err := LoadRecipe(path)
	if err != nil {
		t.Fatalf("LoadRecipe: %v", err)
	}
	if rec.Bank != "STPLN" || rec.BankID != 15043 {
		t.Fatalf("recipe header = (%s, %d)", rec.Bank, rec.BankID)
	}
	if len(rec.Ops) != 6 {
		t.Fatalf("ops = %d, want 6", len(rec.Ops))
	}
	if rec.Schema["xcore"] != KindF64 {
		t.Fatalf("schema xcore = %v, want f64", rec.Schema["xcore"])
	}

	count := rec.Ops[3]
	if count.Field != "if_eye" || count.Count.String() != "${maxeye}" {
		t.Fatalf("counted op = %+v", count)
	}
	loop := rec.Ops[4]
	if loop.Loop == nil || loop.Loop.Var != "ieye" || loop.Guard == nil {
		t.Fatalf("loop op = %+v", loop)
	}
	gated := rec.Ops[5]
	if gated.Cond == nil {
		t.Fatalf("gated op lost its condition")
	}
	// count defaults to a single value
	if got, err := gated.Count.Eval(Record{}); err != nil || got != 1 {
		t.Fatalf("default count = %d, %v, want 1", got, err)
	}
}

func TestLoadRecipeRejectsDefects(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantMsg string
	}{
		{
			name:    "unknown type",
			yaml:    "bank: X\nbankId: 1\nops:\n  - field: a\n    type: i128\n",
			wantMsg: "unknown field type",
		},
		{
			name:    "guard without loop",
			yaml:    "bank: X\nbankId: 1\nops:\n  - field: a\n    type: i32\n    guard: a == 1\n",
			wantMsg: "guard without a loop",
		},
		{
			name:    "loop without bound",
			yaml:    "bank: X\nbankId: 1\nops:\n  - field: a\n    type: i32\n    loop:\n      var: i\n",
			wantMsg: "loop without a bound",
		},
		{
			name:    "schema conflict",
			yaml:    "bank: X\nbankId: 1\nschema:\n  a: f64\nops:\n  - field: a\n    type: i32\n",
			wantMsg: "conflicts with schema type",
		},
		{
			name:    "duplicate field",
			yaml:    "bank: X\nbankId: 1\nops:\n  - field: a\n    type: i32\n  - field: a\n    type: i32\n",
			wantMsg: "duplicate field",
		},
		{
			name:    "missing bank id",
			yaml:    "bank: X\nops:\n  - field: a\n    type: i32\n",
			wantMsg: "missing bankId",
		},
		{
			name:    "no operations",
			yaml:    "bank: X\nbankId: 1\n",
			wantMsg: "no operations",
		},
		{
			name:    "unknown key",
			yaml:    "bank: X\nbankId: 1\nopss: []\n",
			wantMsg: "not found",
		},
		{
			name:    "malformed expression",
			yaml:    "bank: X\nbankId: 1\nops:\n  - field: a\n    type: i32\n    count: 1 + 2\n",
			wantMsg: "malformed expression",
		},
	}
	dir := t.TempDir()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeRecipe(t, dir, "bad.yaml", tc.yaml)
			_, err := LoadRecipe(path)
			if err == nil {
				t.Fatalf("expected error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Fatalf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "stpln.yaml", trackerYAML)
	writeRecipe(t, dir, "other.yml", "bank: OTHER\nbankId: 16000\nops:\n  - field: n\n    type: i32\n")
	writeRecipe(t, dir, "notes.txt", "ignored")

	reg, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("LoadDir: %v", err)
	}
	if reg.Len() != 2 {
		t.Fatalf("registry size = %d, want 2", reg.Len())
	}
	if _, ok := reg.Lookup(15043); !ok {
		t.Fatalf("tracking recipe not registered")
	}
	if _, ok := reg.Lookup(16000); !ok {
		t.Fatalf("second recipe not registered")
	}
	if _, ok := reg.Lookup(1); ok {
		t.Fatalf("unexpected recipe for unknown id")
	}
}

func TestLoadDirRejectsDuplicateBankID(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "a.yaml", "bank: A\nbankId: 9\nops:\n  - field: n\n    type: i32\n")
	writeRecipe(t, dir, "b.yaml", "bank: B\nbankId: 9\nops:\n  - field: n\n    type: i32\n")
	if _, err := LoadDir(dir); err == nil || !strings.Contains(err.Error(), "duplicate recipe") {
		t.Fatalf("expected duplicate recipe error, got %v", err)
	}
}
