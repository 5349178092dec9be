package recipe

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"example.com/dstkit/internal/dst"
)

func appendI32(b []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(b, uint32(v))
}

func appendF64(b []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(b, math.Float64bits(v))
}

// trackerRecipe mirrors the shape of a real tracking bank: a counted flag
// array, a guarded per-eye loop and a version-gated trailing field.
func trackerRecipe() *Recipe {
	cond := MustParse("bankversion >= 2")
	guard := MustParse("if_eye[ieye] == 1")
	return &Recipe{
		Bank:   "STPLN",
		BankID: 15043,
		Ops: []Op{
			{Field: "bankid", Kind: KindI32, Count: Literal(1)},
			{Field: "bankversion", Kind: KindI32, Count: Literal(1)},
			{Field: "maxeye", Kind: KindI32, Count: Literal(1)},
			{Field: "if_eye", Kind: KindI32, Count: MustParse("${maxeye}")},
			{
				Field: "xcore",
				Kind:  KindF64,
				Count: Literal(1),
				Guard: &guard,
				Loop:  &Loop{Var: "ieye", Bound: MustParse("${maxeye}")},
			},
			{Field: "extra", Kind: KindI32, Count: Literal(1), Cond: &cond},
		},
	}
}

func trackerPayload(version int32, ifEye []int32, xcore []float64, extra []int32) []byte {
	var buf []byte
	buf = appendI32(buf, 15043)
	buf = appendI32(buf, version)
	buf = appendI32(buf, int32(len(ifEye)))
	for _, v := range ifEye {
		buf = appendI32(buf, v)
	}
	for _, v := range xcore {
		buf = appendF64(buf, v)
	}
	for _, v := range extra {
		buf = appendI32(buf, v)
	}
	return buf
}

func TestDecodeTrackerBank(t *testing.T) {
	payload := trackerPayload(2, []int32{1, 0, 1}, []float64{1.5, 2.5}, []int32{77})
	rec, err := Decode(payload, trackerRecipe())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got := rec["bankid"]; got != int64(15043) {
		t.Fatalf("bankid = %v, want 15043", got)
	}
	if got := rec["maxeye"]; got != int64(3) {
		t.Fatalf("maxeye = %v, want 3", got)
	}
	ifEye, ok := rec["if_eye"].([]int64)
	if !ok || len(ifEye) != 3 || ifEye[0] != 1 || ifEye[1] != 0 || ifEye[2] != 1 {
		t.Fatalf("if_eye = %v, want [1 0 1]", rec["if_eye"])
	}
	xcore, ok := rec["xcore"].([]any)
	if !ok || len(xcore) != 2 {
		t.Fatalf("xcore = %v, want two guarded entries", rec["xcore"])
	}
	if xcore[0] != 1.5 || xcore[1] != 2.5 {
		t.Fatalf("xcore = %v, want [1.5 2.5]", xcore)
	}
	if got := rec["extra"]; got != int64(77) {
		t.Fatalf("extra = %v, want 77", got)
	}
	if _, leaked := rec["ieye"]; leaked {
		t.Fatalf("loop variable leaked into the record")
	}
}

func TestDecodeBankSeedsHeader(t *testing.T) {
	content := trackerPayload(2, []int32{1}, []float64{3.25}, []int32{5})
	// BankPayload prepends the id/version header that the recipe's first two
	// operations then re-read
	bank := dst.Bank{ID: 15043, Version: 2, Data: dst.BankPayload(15043, 2, content[8:])}

	rec, err := DecodeBank(bank, trackerRecipe())
	if err != nil {
		t.Fatalf("DecodeBank: %v", err)
	}
	if rec["bankid"] != int64(15043) || rec["bankversion"] != int64(2) {
		t.Fatalf("header = (%v, %v), want (15043, 2)", rec["bankid"], rec["bankversion"])
	}
	if got := rec["extra"]; got != int64(5) {
		t.Fatalf("extra = %v, want 5", got)
	}
}

func TestDecodeVersionGatedFieldSkipped(t *testing.T) {
	payload := trackerPayload(1, []int32{0}, nil, nil)
	rec, err := Decode(payload, trackerRecipe())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, present := rec["extra"]; present {
		t.Fatalf("version-gated field decoded for version 1")
	}
}

func TestDecodeGuardSkipsWithoutConsuming(t *testing.T) {
	// every guard is false, so no loop bytes exist; the trailing field must
	// still decode from the right offset
	payload := trackerPayload(2, []int32{0, 0}, nil, []int32{42})
	rec, err := Decode(payload, trackerRecipe())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	xcore, ok := rec["xcore"].([]any)
	if !ok || len(xcore) != 0 {
		t.Fatalf("xcore = %v, want empty", rec["xcore"])
	}
	if got := rec["extra"]; got != int64(42) {
		t.Fatalf("extra = %v, want 42", got)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	payload := trackerPayload(2, []int32{1, 1}, []float64{1.0}, nil)
	_, err := Decode(payload, trackerRecipe())
	if !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("expected ErrTruncatedPayload, got %v", err)
	}
}

func TestDecodeNarrowKindsPromote(t *testing.T) {
	rec := &Recipe{
		Bank:   "MIX",
		BankID: 4,
		Ops: []Op{
			{Field: "a", Kind: KindI16, Count: Literal(1)},
			{Field: "b", Kind: KindU16, Count: Literal(1)},
			{Field: "c", Kind: KindF32, Count: Literal(1)},
		},
	}
	var payload []byte
	payload = binary.LittleEndian.AppendUint16(payload, uint16(0xFFFF)) // -1 as i16
	payload = binary.LittleEndian.AppendUint16(payload, 0xFFFF)
	payload = binary.LittleEndian.AppendUint32(payload, math.Float32bits(0.5))

	out, err := Decode(payload, rec)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out["a"] != int64(-1) {
		t.Fatalf("a = %v, want -1", out["a"])
	}
	if out["b"] != int64(65535) {
		t.Fatalf("b = %v, want 65535", out["b"])
	}
	if out["c"] != float64(0.5) {
		t.Fatalf("c = %v, want 0.5", out["c"])
	}
}

func TestDecodeU64Overflow(t *testing.T) {
	rec := &Recipe{
		Bank:   "BIG",
		BankID: 5,
		Ops:    []Op{{Field: "n", Kind: KindU64, Count: Literal(1)}},
	}
	payload := binary.LittleEndian.AppendUint64(nil, math.MaxUint64)
	if _, err := Decode(payload, rec); err == nil {
		t.Fatalf("expected overflow error for u64 beyond int64 range")
	}
}
