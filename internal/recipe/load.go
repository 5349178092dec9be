package recipe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

type recipeFile struct {
	Bank   string            `yaml:"bank"`
	BankID uint32            `yaml:"bankId"`
	Schema map[string]string `yaml:"schema"`
	Ops    []opFile          `yaml:"ops"`
}

type opFile struct {
	Field string    `yaml:"field"`
	Type  string    `yaml:"type"`
	Count *Expr     `yaml:"count"`
	Cond  *Expr     `yaml:"cond"`
	Guard *Expr     `yaml:"guard"`
	Loop  *loopFile `yaml:"loop"`
}

type loopFile struct {
	Var   string `yaml:"var"`
	Bound Expr   `yaml:"bound"`
}

// LoadRecipe reads and validates one recipe artifact.
func LoadRecipe(path string) (*Recipe, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	rec, err := ReadRecipe(f)
	if err != nil {
		return nil, fmt.Errorf("recipe %s: %w", filepath.Base(path), err)
	}
	return rec, nil
}

// ReadRecipe parses a recipe from r.
func ReadRecipe(r io.Reader) (*Recipe, error) {
	var file recipeFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, err
	}
	return file.validate()
}

func (f *recipeFile) validate() (*Recipe, error) {
	if f.Bank == "" {
		return nil, fmt.Errorf("missing bank name")
	}
	if f.BankID == 0 {
		return nil, fmt.Errorf("bank %s: missing bankId", f.Bank)
	}
	if len(f.Ops) == 0 {
		return nil, fmt.Errorf("bank %s: no operations", f.Bank)
	}

	rec := &Recipe{
		Bank:   f.Bank,
		BankID: f.BankID,
		Schema: make(map[string]Kind, len(f.Schema)),
	}
	for name, typ := range f.Schema {
		if !validIdent(name) {
			return nil, fmt.Errorf("bank %s: invalid schema field name %q", f.Bank, name)
		}
		kind, err := ParseKind(typ)
		if err != nil {
			return nil, fmt.Errorf("bank %s, schema field %q: %w", f.Bank, name, err)
		}
		rec.Schema[name] = kind
	}

	rec.Ops = make([]Op, 0, len(f.Ops))
	seen := make(map[string]bool, len(f.Ops))
	for i, of := range f.Ops {
		op, err := of.validate(rec.Schema)
		if err != nil {
			return nil, fmt.Errorf("bank %s, op %d: %w", f.Bank, i, err)
		}
		if seen[op.Field] {
			return nil, fmt.Errorf("bank %s, op %d: duplicate field %q", f.Bank, i, op.Field)
		}
		seen[op.Field] = true
		rec.Ops = append(rec.Ops, op)
	}
	return rec, nil
}

func (of *opFile) validate(schema map[string]Kind) (Op, error) {
	if of.Field == "" {
		return Op{}, fmt.Errorf("missing field name")
	}
	if !validIdent(of.Field) {
		return Op{}, fmt.Errorf("invalid field name %q", of.Field)
	}
	kind, err := ParseKind(of.Type)
	if err != nil {
		return Op{}, fmt.Errorf("field %q: %w", of.Field, err)
	}
	if want, ok := schema[of.Field]; ok && want != kind {
		return Op{}, fmt.Errorf("field %q: op type %s conflicts with schema type %s", of.Field, kind, want)
	}

	op := Op{
		Field: of.Field,
		Kind:  kind,
		Count: Literal(1),
		Cond:  of.Cond,
		Guard: of.Guard,
	}
	if of.Count != nil {
		op.Count = *of.Count
	}
	if of.Loop != nil {
		if !validIdent(of.Loop.Var) {
			return Op{}, fmt.Errorf("field %q: invalid loop variable %q", of.Field, of.Loop.Var)
		}
		if of.Loop.Bound.IsZero() {
			return Op{}, fmt.Errorf("field %q: loop without a bound", of.Field)
		}
		op.Loop = &Loop{Var: of.Loop.Var, Bound: of.Loop.Bound}
	} else if of.Guard != nil {
		return Op{}, fmt.Errorf("field %q: guard without a loop", of.Field)
	}
	return op, nil
}

// LoadDir loads every *.yaml / *.yml recipe under dir into a registry.
func LoadDir(dir string) (*Registry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	reg := NewRegistry()
	for _, name := range names {
		rec, err := LoadRecipe(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		if err := reg.Add(rec); err != nil {
			return nil, fmt.Errorf("recipe %s: %w", name, err)
		}
	}
	return reg, nil
}
