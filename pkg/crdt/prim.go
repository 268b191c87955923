package crdt

import (
	"encoding/json"
	"fmt"
	"math"
)

// Prim is a tagged scalar: exactly one of Nil, Int, Float, Str, or Blob is
// live at a time, selected by Kind. Every field is a comparable Go type
// (floats are stored as their raw bits, blobs as a string) so that Prim
// itself is comparable and can be used directly as a Go map/set key — which
// ORSet[Prim] and MVReg[Prim] both rely on.
type Prim struct {
	kind  Kind
	i     int64
	fbits uint64
	s     string
	blob  string
}

// primTagRank orders Prim's kinds: Nil, Float, Int, Str, Blob.
func primTagRank(k Kind) int {
	switch k {
	case KindNil:
		return 0
	case KindFloat:
		return 1
	case KindInt:
		return 2
	case KindStr:
		return 3
	case KindBlob:
		return 4
	default:
		return 5
	}
}

// PrimNil returns the nil primitive.
func PrimNil() Prim { return Prim{kind: KindNil} }

// PrimInt wraps an int64.
func PrimInt(v int64) Prim { return Prim{kind: KindInt, i: v} }

// PrimFloat wraps a float64, stored by bit pattern so that two floats with
// identical bits (including identical NaN payloads) compare equal.
func PrimFloat(v float64) Prim { return Prim{kind: KindFloat, fbits: math.Float64bits(v)} }

// PrimStr wraps a UTF-8 string.
func PrimStr(v string) Prim { return Prim{kind: KindStr, s: v} }

// PrimBlob wraps an arbitrary byte string.
func PrimBlob(v []byte) Prim { return Prim{kind: KindBlob, blob: string(v)} }

// Kind reports which variant is live.
func (p Prim) Kind() Kind { return p.kind }

// ErrKindMismatch is returned when a caller asks a Prim or Data for a kind it
// does not currently hold.
type ErrKindMismatch struct {
	Want Kind
	Got  Kind
}

func (e *ErrKindMismatch) Error() string {
	return fmt.Sprintf("crdt: kind mismatch: want %s, got %s", e.Want, e.Got)
}

// Int returns the wrapped int64, or an *ErrKindMismatch if p is not Int.
func (p Prim) Int() (int64, error) {
	if p.kind != KindInt {
		return 0, &ErrKindMismatch{Want: KindInt, Got: p.kind}
	}
	return p.i, nil
}

// Float returns the wrapped float64, or an *ErrKindMismatch if p is not Float.
func (p Prim) Float() (float64, error) {
	if p.kind != KindFloat {
		return 0, &ErrKindMismatch{Want: KindFloat, Got: p.kind}
	}
	return math.Float64frombits(p.fbits), nil
}

// Str returns the wrapped string, or an *ErrKindMismatch if p is not Str.
func (p Prim) Str() (string, error) {
	if p.kind != KindStr {
		return "", &ErrKindMismatch{Want: KindStr, Got: p.kind}
	}
	return p.s, nil
}

// Blob returns a copy of the wrapped bytes, or an *ErrKindMismatch if p is
// not Blob.
func (p Prim) Blob() ([]byte, error) {
	if p.kind != KindBlob {
		return nil, &ErrKindMismatch{Want: KindBlob, Got: p.kind}
	}
	return []byte(p.blob), nil
}

// Compare totally orders Prim values: first by tag (Nil < Float < Int < Str
// < Blob), then by value within a tag. Floats use IEEE-754 total-order
// semantics: NaN sorts after every other float, and two NaNs are ordered by
// raw bit pattern so that identical bit patterns compare equal.
func (p Prim) Compare(other Prim) int {
	if p.kind != other.kind {
		return primTagRank(p.kind) - primTagRank(other.kind)
	}
	switch p.kind {
	case KindNil:
		return 0
	case KindInt:
		switch {
		case p.i < other.i:
			return -1
		case p.i > other.i:
			return 1
		default:
			return 0
		}
	case KindFloat:
		return compareFloatBits(p.fbits, other.fbits)
	case KindStr:
		switch {
		case p.s < other.s:
			return -1
		case p.s > other.s:
			return 1
		default:
			return 0
		}
	case KindBlob:
		switch {
		case p.blob < other.blob:
			return -1
		case p.blob > other.blob:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

func compareFloatBits(ab, bb uint64) int {
	a, b := math.Float64frombits(ab), math.Float64frombits(bb)
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		switch {
		case ab < bb:
			return -1
		case ab > bb:
			return 1
		default:
			return 0
		}
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// jsonPrim is Prim's wire representation: a discriminant plus whichever
// field is live. encoding/json sorts struct fields by declaration, not by
// key, so this is stable regardless of which variant is set.
type jsonPrim struct {
	Kind  Kind    `json:"kind"`
	Int   int64   `json:"int,omitempty"`
	Float float64 `json:"float,omitempty"`
	Str   string  `json:"str,omitempty"`
	Blob  []byte  `json:"blob,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (p Prim) MarshalJSON() ([]byte, error) {
	j := jsonPrim{Kind: p.kind}
	switch p.kind {
	case KindInt:
		j.Int = p.i
	case KindFloat:
		j.Float = math.Float64frombits(p.fbits)
	case KindStr:
		j.Str = p.s
	case KindBlob:
		j.Blob = []byte(p.blob)
	}
	return json.Marshal(j)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *Prim) UnmarshalJSON(b []byte) error {
	var j jsonPrim
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	switch j.Kind {
	case KindNil:
		*p = PrimNil()
	case KindInt:
		*p = PrimInt(j.Int)
	case KindFloat:
		*p = PrimFloat(j.Float)
	case KindStr:
		*p = PrimStr(j.Str)
	case KindBlob:
		*p = PrimBlob(j.Blob)
	default:
		return fmt.Errorf("crdt: unknown prim kind %d", j.Kind)
	}
	return nil
}
