package core

// values.go – numeric and store asset values. Numeric values are scaled
// integers backed by math/big so that no state-affecting path ever touches
// floating point, per the determinism rule in spec.md §4.F/§5.

import (
	"math/big"
)

// Mintability controls how many times Mint may succeed against an asset
// definition over its lifetime (spec.md I3).
type Mintability int

const (
	MintInfinitely Mintability = iota
	MintOnce
	MintNot
)

// AssetType distinguishes a fungible numeric asset from an opaque
// key-value "Store" asset.
type AssetType int

const (
	AssetTypeNumeric AssetType = iota
	AssetTypeStore
)

// Numeric is a fixed-point decimal value: Mantissa * 10^-Scale. Scale is
// fixed per asset definition; arithmetic across mismatched scales is a
// KindMath error.
type Numeric struct {
	Mantissa *big.Int
	Scale    uint32
}

func ZeroNumeric(scale uint32) Numeric {
	return Numeric{Mantissa: big.NewInt(0), Scale: scale}
}

func NewNumeric(i int64, scale uint32) Numeric {
	return Numeric{Mantissa: big.NewInt(i), Scale: scale}
}

func (n Numeric) String() string {
	if n.Mantissa == nil {
		return "0"
	}
	s := n.Mantissa.String()
	if n.Scale == 0 {
		return s
	}
	neg := s[0] == '-'
	if neg {
		s = s[1:]
	}
	for uint32(len(s)) <= n.Scale {
		s = "0" + s
	}
	cut := len(s) - int(n.Scale)
	out := s[:cut] + "." + s[cut:]
	if neg {
		out = "-" + out
	}
	return out
}

// Add returns n+other, failing KindMath on scale mismatch. It does not
// check the sign of the result; Sub is the operation that rejects a
// negative outcome.
func (n Numeric) Add(other Numeric) (Numeric, error) {
	if n.Scale != other.Scale {
		return Numeric{}, Newf(KindMath, "scale mismatch: %d vs %d", n.Scale, other.Scale)
	}
	return Numeric{Mantissa: new(big.Int).Add(n.Mantissa, other.Mantissa), Scale: n.Scale}, nil
}

// Sub returns n-other, failing KindMath on scale mismatch or underflow
// below zero (Iroha numeric assets never go negative).
func (n Numeric) Sub(other Numeric) (Numeric, error) {
	if n.Scale != other.Scale {
		return Numeric{}, Newf(KindMath, "scale mismatch: %d vs %d", n.Scale, other.Scale)
	}
	r := new(big.Int).Sub(n.Mantissa, other.Mantissa)
	if r.Sign() < 0 {
		return Numeric{}, Newf(KindMath, "underflow: %s - %s", n, other)
	}
	return Numeric{Mantissa: r, Scale: n.Scale}, nil
}

func (n Numeric) Cmp(other Numeric) int {
	if n.Scale != other.Scale {
		// Normalise to the larger scale for comparison purposes only.
		a, b := n, other
		for a.Scale < b.Scale {
			a.Mantissa = new(big.Int).Mul(a.Mantissa, big.NewInt(10))
			a.Scale++
		}
		for b.Scale < a.Scale {
			b.Mantissa = new(big.Int).Mul(b.Mantissa, big.NewInt(10))
			b.Scale++
		}
		return a.Mantissa.Cmp(b.Mantissa)
	}
	return n.Mantissa.Cmp(other.Mantissa)
}

func (n Numeric) IsZero() bool { return n.Mantissa == nil || n.Mantissa.Sign() == 0 }

// AssetValue is the tagged union of what an Asset may hold.
type AssetValue struct {
	Type    AssetType
	Numeric Numeric
	Store   Metadata
}

func NumericValue(n Numeric) AssetValue { return AssetValue{Type: AssetTypeNumeric, Numeric: n} }
func StoreValue(m Metadata) AssetValue  { return AssetValue{Type: AssetTypeStore, Store: m} }
