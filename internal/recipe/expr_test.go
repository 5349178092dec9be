package recipe

import (
	"errors"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestParseExprEval(t *testing.T) {
	ctx := Record{
		"maxeye":      int64(4),
		"bankversion": int64(3),
		"ieye":        int64(2),
		"if_eye":      []int64{1, 0, 1},
	}

	tests := []struct {
		src  string
		want int64
	}{
		{src: "3", want: 3},
		{src: "-17", want: -17},
		{src: "${maxeye}", want: 4},
		{src: "maxeye", want: 4},
		{src: "if_eye[ieye]", want: 1},
		{src: "1 == 1", want: 1},
		{src: "1 != 1", want: 0},
		{src: "2 < 3", want: 1},
		{src: "3 <= 3", want: 1},
		{src: "4 > 5", want: 0},
		{src: "5 >= 5", want: 1},
		{src: "${bankversion} >= 2", want: 1},
		{src: "if_eye[ieye]==1", want: 1},
		{src: "${maxeye} != maxeye", want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.src, func(t *testing.T) {
			e, err := ParseExpr(tc.src)
			if err != nil {
				t.Fatalf("ParseExpr: %v", err)
			}
			got, err := e.Eval(ctx)
			if err != nil {
				t.Fatalf("Eval: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Eval = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestParseExprRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"   ",
		"${maxeye",
		"${}",
		"if_eye[",
		"if_eye[3]",
		"1 2",
		"== 1",
		"1 + 2",
		"1 == 2 == 3",
		"foo bar",
	}
	for _, src := range tests {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			var perr *ParseError
			if !errors.As(err, &perr) {
				t.Fatalf("expected ParseError for %q, got %v", src, err)
			}
		})
	}
}

func TestExprSymbolErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		ctx  Record
	}{
		{name: "unknown field", src: "${missing}", ctx: Record{}},
		{name: "loop var out of scope", src: "if_eye[ieye]", ctx: Record{"if_eye": []int64{1}}},
		{name: "index out of range", src: "if_eye[ieye]", ctx: Record{"if_eye": []int64{1}, "ieye": int64(5)}},
		{name: "not an integer", src: "${xcore}", ctx: Record{"xcore": float64(1.5)}},
		{name: "scalar indexed", src: "maxeye[ieye]", ctx: Record{"maxeye": int64(3), "ieye": int64(0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e, err := ParseExpr(tc.src)
			if err != nil {
				t.Fatalf("ParseExpr: %v", err)
			}
			_, err = e.Eval(tc.ctx)
			var serr *SymbolError
			if !errors.As(err, &serr) {
				t.Fatalf("expected SymbolError, got %v", err)
			}
		})
	}
}

func TestExprYAMLScalar(t *testing.T) {
	var doc struct {
		Count Expr `yaml:"count"`
		Bound Expr `yaml:"bound"`
	}
	src := "count: 3\nbound: ${maxeye}\n"
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got, err := doc.Count.Eval(Record{}); err != nil || got != 3 {
		t.Fatalf("count = %d, %v, want 3", got, err)
	}
	got, err := doc.Bound.Eval(Record{"maxeye": int64(6)})
	if err != nil || got != 6 {
		t.Fatalf("bound = %d, %v, want 6", got, err)
	}
}

func TestExprYAMLRejectsNonScalar(t *testing.T) {
	var doc struct {
		Count Expr `yaml:"count"`
	}
	if err := yaml.Unmarshal([]byte("count: [1, 2]\n"), &doc); err == nil {
		t.Fatalf("expected error for sequence value")
	}
}
