package flow

import (
	"bytes"
	"fmt"
)

// Kind is the kind of a flow state attribute value.
type Kind uint

const (
	KindInvalid Kind = iota
	KindString
	KindBytes
	KindInteger
	KindRecord
)

var kindNames = map[Kind]string{
	KindString:  "string",
	KindBytes:   "bytes",
	KindInteger: "integer",
	KindRecord:  "record",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", k)
}

func kindForString(s string) Kind {
	for k, v := range kindNames {
		if v == s {
			return k
		}
	}
	return KindInvalid
}

// Value is a tagged variant holding one attribute value.
type Value struct {
	kind Kind
	s    string
	b    []byte
	i    int64
	r    *State
}

// StringValue creates a new string value.
func StringValue(s string) Value {
	return Value{kind: KindString, s: s}
}

// BytesValue creates a new bytes value.
func BytesValue(b []byte) Value {
	return Value{kind: KindBytes, b: b}
}

// IntegerValue creates a new integer value.
func IntegerValue(i int64) Value {
	return Value{kind: KindInteger, i: i}
}

// RecordValue creates a new nested record value.
// A nil record is stored as an empty record.
func RecordValue(r *State) Value {
	if r == nil {
		r = NewState()
	}
	return Value{kind: KindRecord, r: r}
}

// Kind returns the kind of v.
func (v Value) Kind() Kind {
	return v.kind
}

// Equal reports whether v and o have the same kind and value.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindString:
		return v.s == o.s
	case KindBytes:
		return bytes.Equal(v.b, o.b)
	case KindInteger:
		return v.i == o.i
	case KindRecord:
		return v.r.Equal(o.r)
	}
	return true
}

func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.s
	case KindBytes:
		return fmt.Sprintf("%x", v.b)
	case KindInteger:
		return fmt.Sprint(v.i)
	case KindRecord:
		return fmt.Sprintf("record(%v)", v.r.Names())
	}
	return "<invalid>"
}
