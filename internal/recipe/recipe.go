// Package recipe decodes a bank's raw payload into named, typed fields by
// interpreting a declarative operation list. Recipes are produced by an
// external generator from the original bank source code; this package only
// consumes the artifact.
package recipe

import "fmt"

// Kind identifies the wire type of a field. The two-byte kinds are stored
// narrow and promoted to 64-bit on decode, mirroring the original pack
// functions (i2asi4, i4asui2).
type Kind int

const (
	KindInvalid Kind = iota
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF32
	KindF64
)

var kindNames = map[Kind]string{
	KindI16: "i16",
	KindU16: "u16",
	KindI32: "i32",
	KindU32: "u32",
	KindI64: "i64",
	KindU64: "u64",
	KindF32: "f32",
	KindF64: "f64",
}

func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindInvalid, fmt.Errorf("unknown field type %q", s)
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Size returns the stored width in bytes.
func (k Kind) Size() int {
	switch k {
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32, KindF32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	default:
		return 0
	}
}

// Float reports whether the kind decodes to float64 rather than int64.
func (k Kind) Float() bool {
	return k == KindF32 || k == KindF64
}

// Loop repeats an operation once per index in [0, Bound).
type Loop struct {
	Var   string
	Bound Expr
}

// Op is one field-extraction step. Count defaults to one value; Cond skips
// the whole op, Guard skips single loop iterations.
type Op struct {
	Field string
	Kind  Kind
	Count Expr
	Cond  *Expr
	Guard *Expr
	Loop  *Loop
}

// Recipe is the ordered operation list for one bank type, with an optional
// field-name to logical-type schema.
type Recipe struct {
	Bank   string
	BankID uint32
	Schema map[string]Kind
	Ops    []Op
}

// Registry resolves recipes by bank identifier.
type Registry struct {
	recipes map[uint32]*Recipe
}

func NewRegistry() *Registry {
	return &Registry{recipes: make(map[uint32]*Recipe)}
}

func (r *Registry) Add(rec *Recipe) error {
	if rec == nil {
		return fmt.Errorf("nil recipe")
	}
	if _, exists := r.recipes[rec.BankID]; exists {
		return fmt.Errorf("duplicate recipe for bank id %d", rec.BankID)
	}
	r.recipes[rec.BankID] = rec
	return nil
}

func (r *Registry) Lookup(bankID uint32) (*Recipe, bool) {
	if r == nil {
		return nil, false
	}
	rec, ok := r.recipes[bankID]
	return rec, ok
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.recipes)
}
