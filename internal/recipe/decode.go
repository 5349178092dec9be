package recipe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"example.com/dstkit/internal/dst"
)

// Record holds the decoded fields of one bank. Integer kinds are stored as
// int64, float kinds as float64; counted fields become []int64 / []float64 and
// loop-collected fields become []any with one entry per taken iteration.
type Record map[string]any

// ErrTruncatedPayload reports that an operation ran past the end of the bank
// payload. The payload passed its CRC, so this points at a recipe/payload
// version mismatch rather than corruption.
var ErrTruncatedPayload = errors.New("payload truncated")

// Decode runs the recipe's operations over data from offset zero.
func Decode(data []byte, rec *Recipe) (Record, error) {
	return decode(data, rec, Record{})
}

// DecodeBank decodes a reassembled bank. The record is pre-seeded with
// "bankid" and "bankversion" so early conditions can reference them; the
// recipe's own leading header operations then re-read the same bytes.
func DecodeBank(b dst.Bank, rec *Recipe) (Record, error) {
	out := Record{
		"bankid":      int64(b.ID),
		"bankversion": int64(b.Version),
	}
	return decode(b.Data, rec, out)
}

func decode(data []byte, rec *Recipe, out Record) (Record, error) {
	d := &decoder{data: data, out: out}
	for i := range rec.Ops {
		op := &rec.Ops[i]
		if err := d.run(op); err != nil {
			return nil, fmt.Errorf("bank %s, field %q: %w", rec.Bank, op.Field, err)
		}
	}
	return d.out, nil
}

type decoder struct {
	data []byte
	pos  int
	out  Record
}

func (d *decoder) run(op *Op) error {
	if op.Cond != nil {
		take, err := op.Cond.EvalBool(d.out)
		if err != nil {
			return err
		}
		if !take {
			return nil
		}
	}
	if op.Loop != nil {
		return d.runLoop(op)
	}
	count, err := d.count(op)
	if err != nil {
		return err
	}
	v, err := d.read(op.Kind, count)
	if err != nil {
		return err
	}
	d.out[op.Field] = v
	return nil
}

func (d *decoder) runLoop(op *Op) error {
	bound, err := op.Loop.Bound.Eval(d.out)
	if err != nil {
		return err
	}
	if bound < 0 {
		return fmt.Errorf("loop bound %q evaluated to %d", op.Loop.Bound, bound)
	}
	collected := make([]any, 0, bound)
	defer delete(d.out, op.Loop.Var)
	for i := int64(0); i < bound; i++ {
		d.out[op.Loop.Var] = i
		if op.Guard != nil {
			take, err := op.Guard.EvalBool(d.out)
			if err != nil {
				return err
			}
			if !take {
				continue
			}
		}
		count, err := d.count(op)
		if err != nil {
			return err
		}
		v, err := d.read(op.Kind, count)
		if err != nil {
			return err
		}
		collected = append(collected, v)
	}
	d.out[op.Field] = collected
	return nil
}

func (d *decoder) count(op *Op) (int64, error) {
	count, err := op.Count.Eval(d.out)
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, fmt.Errorf("count %q evaluated to %d", op.Count, count)
	}
	return count, nil
}

// read extracts count values. A count of one yields a scalar, anything else a
// typed slice.
func (d *decoder) read(k Kind, count int64) (any, error) {
	if count == 1 {
		return d.value(k)
	}
	if k.Float() {
		vals := make([]float64, 0, count)
		for i := int64(0); i < count; i++ {
			v, err := d.value(k)
			if err != nil {
				return nil, err
			}
			vals = append(vals, v.(float64))
		}
		return vals, nil
	}
	vals := make([]int64, 0, count)
	for i := int64(0); i < count; i++ {
		v, err := d.value(k)
		if err != nil {
			return nil, err
		}
		vals = append(vals, v.(int64))
	}
	return vals, nil
}

func (d *decoder) value(k Kind) (any, error) {
	size := k.Size()
	if d.pos+size > len(d.data) {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, %d left",
			ErrTruncatedPayload, size, d.pos, len(d.data)-d.pos)
	}
	raw := d.data[d.pos:]
	d.pos += size
	switch k {
	case KindI16:
		return int64(int16(binary.LittleEndian.Uint16(raw))), nil
	case KindU16:
		return int64(binary.LittleEndian.Uint16(raw)), nil
	case KindI32:
		return int64(int32(binary.LittleEndian.Uint32(raw))), nil
	case KindU32:
		return int64(binary.LittleEndian.Uint32(raw)), nil
	case KindI64:
		return int64(binary.LittleEndian.Uint64(raw)), nil
	case KindU64:
		v := binary.LittleEndian.Uint64(raw)
		if v > math.MaxInt64 {
			return nil, fmt.Errorf("u64 value %d at offset %d overflows int64", v, d.pos-size)
		}
		return int64(v), nil
	case KindF32:
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(raw))), nil
	case KindF64:
		return math.Float64frombits(binary.LittleEndian.Uint64(raw)), nil
	default:
		return nil, fmt.Errorf("unsupported field type %v", k)
	}
}
