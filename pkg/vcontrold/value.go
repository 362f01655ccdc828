package vcontrold

import (
	"strconv"
	"strings"
)

// DeclaredType is the protocol type a command reports in its detail block.
// It is decided once while the catalog is built and drives both decoding
// and encoding of the command's values.
type DeclaredType int

const (
	TypeString DeclaredType = iota
	TypeNumeric
	TypeSwitch
	TypeEnum
)

func (t DeclaredType) String() string {
	switch t {
	case TypeNumeric:
		return "numeric"
	case TypeSwitch:
		return "switch"
	case TypeEnum:
		return "enum"
	default:
		return "string"
	}
}

// ParseDeclaredType maps the text of a "Type:" detail line (or the TYPE
// field of an alias registration) to a DeclaredType. Unknown names map to
// TypeString.
func ParseDeclaredType(s string) DeclaredType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "enum", "enumtype":
		return TypeEnum
	case "float", "double", "decimal", "number", "int", "short", "char",
		"byte", "uint", "ushort", "uchar", "long", "decimaltype":
		return TypeNumeric
	case "switch", "bool", "boolean", "onoff", "onofftype":
		return TypeSwitch
	default:
		return TypeString
	}
}

// Kind identifies which variant a Value holds.
type Kind int

const (
	KindInvalid Kind = iota
	KindDecimal
	KindSwitch
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindDecimal:
		return "decimal"
	case KindSwitch:
		return "switch"
	case KindText:
		return "text"
	default:
		return "invalid"
	}
}

// Value is a decoded protocol value: a decimal number, a switch state or
// text. Enum commands decode to text. The zero Value is invalid.
type Value struct {
	kind Kind
	num  float64
	on   bool
	text string
}

// Decimal returns a numeric Value.
func Decimal(f float64) Value { return Value{kind: KindDecimal, num: f} }

// Switch returns an on/off Value.
func Switch(on bool) Value { return Value{kind: KindSwitch, on: on} }

// Text returns a text Value.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// AsDecimal returns the number held by v and whether v is a decimal.
func (v Value) AsDecimal() (float64, bool) { return v.num, v.kind == KindDecimal }

// AsSwitch returns the state held by v and whether v is a switch.
func (v Value) AsSwitch() (bool, bool) { return v.on, v.kind == KindSwitch }

// AsText returns the text held by v and whether v is text.
func (v Value) AsText() (string, bool) { return v.text, v.kind == KindText }

// String formats v for display: decimals without trailing zeros, switches
// as ON/OFF, text verbatim.
func (v Value) String() string {
	switch v.kind {
	case KindDecimal:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindSwitch:
		if v.on {
			return "ON"
		}
		return "OFF"
	case KindText:
		return v.text
	default:
		return ""
	}
}
