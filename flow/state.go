package flow

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/groob/plist"
)

var (
	ErrUnknownAttribute     = errors.New("unknown attribute")
	ErrDuplicateAttribute   = errors.New("duplicate attribute")
	ErrInvalidAttributeName = errors.New("invalid attribute name")
	ErrWrongKind            = errors.New("wrong attribute kind")
)

// State is an ordered set of named attributes for a flow instance.
// Attributes must be registered before use.
type State struct {
	names []string
	attrs map[string]Value
}

// NewState creates a new empty state.
func NewState() *State {
	return &State{attrs: make(map[string]Value)}
}

// textSafe reports whether str survives a property list text node unchanged.
// That is valid UTF-8 holding only characters legal in XML, less '\r'
// which XML readers normalize.
func textSafe(str string) bool {
	if !utf8.ValidString(str) {
		return false
	}
	for _, r := range str {
		switch {
		case r == '\t' || r == '\n':
		case r >= 0x20 && r <= 0xD7FF:
		case r >= 0xE000 && r <= 0xFFFD:
		case r >= 0x10000 && r <= 0x10FFFF:
		default:
			return false
		}
	}
	return true
}

// Register adds the named attribute with an initial value.
// Names must be non-empty printable UTF-8.
func (s *State) Register(name string, v Value) error {
	if s == nil {
		return errors.New("nil state")
	}
	if name == "" || !textSafe(name) {
		return fmt.Errorf("%w: %q", ErrInvalidAttributeName, name)
	}
	if v.kind == KindInvalid {
		return fmt.Errorf("%w: %s: invalid value", ErrWrongKind, name)
	}
	if _, ok := s.attrs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateAttribute, name)
	}
	if s.attrs == nil {
		s.attrs = make(map[string]Value)
	}
	s.names = append(s.names, name)
	s.attrs[name] = v
	return nil
}

// Get returns the value of the named attribute.
func (s *State) Get(name string) (Value, error) {
	if s == nil {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	v, ok := s.attrs[name]
	if !ok {
		return Value{}, fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	return v, nil
}

// Set replaces the value of an already registered attribute.
// The value may change kind.
func (s *State) Set(name string, v Value) error {
	if !s.Has(name) {
		return fmt.Errorf("%w: %s", ErrUnknownAttribute, name)
	}
	if v.kind == KindInvalid {
		return fmt.Errorf("%w: %s: invalid value", ErrWrongKind, name)
	}
	s.attrs[name] = v
	return nil
}

// Has reports whether the named attribute is registered.
func (s *State) Has(name string) bool {
	if s == nil {
		return false
	}
	_, ok := s.attrs[name]
	return ok
}

// Names returns the attribute names in registration order.
func (s *State) Names() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.names...)
}

// Len returns the number of registered attributes.
func (s *State) Len() int {
	if s == nil {
		return 0
	}
	return len(s.names)
}

func (s *State) getKind(name string, k Kind) (Value, error) {
	v, err := s.Get(name)
	if err != nil {
		return v, err
	}
	if v.kind != k {
		return v, fmt.Errorf("%w: %s: have %s, want %s", ErrWrongKind, name, v.kind, k)
	}
	return v, nil
}

// GetString returns the named string attribute.
func (s *State) GetString(name string) (string, error) {
	v, err := s.getKind(name, KindString)
	return v.s, err
}

// GetBytes returns the named bytes attribute.
func (s *State) GetBytes(name string) ([]byte, error) {
	v, err := s.getKind(name, KindBytes)
	return v.b, err
}

// GetInteger returns the named integer attribute.
func (s *State) GetInteger(name string) (int64, error) {
	v, err := s.getKind(name, KindInteger)
	return v.i, err
}

// GetRecord returns the named nested record attribute.
func (s *State) GetRecord(name string) (*State, error) {
	v, err := s.getKind(name, KindRecord)
	return v.r, err
}

// Equal reports whether s and o have the same attributes in the same order.
func (s *State) Equal(o *State) bool {
	if s.Len() != o.Len() {
		return false
	}
	if s.Len() == 0 {
		return true
	}
	for i, name := range s.names {
		if o.names[i] != name {
			return false
		}
		if !s.attrs[name].Equal(o.attrs[name]) {
			return false
		}
	}
	return true
}

// plistAttr is the durable form of a single attribute.
// Strings that are not text safe are kept in Data with Raw set.
type plistAttr struct {
	Name    string      `plist:"name"`
	Kind    string      `plist:"kind"`
	Raw     bool        `plist:"raw,omitempty"`
	String  string      `plist:"string,omitempty"`
	Data    []byte      `plist:"data,omitempty"`
	Integer int64       `plist:"integer,omitempty"`
	Record  *plistState `plist:"record,omitempty"`
}

type plistState struct {
	Attributes []plistAttr `plist:"attributes"`
}

func (s *State) toPlist() *plistState {
	ps := &plistState{Attributes: make([]plistAttr, 0, s.Len())}
	for _, name := range s.Names() {
		v := s.attrs[name]
		a := plistAttr{Name: name, Kind: v.kind.String()}
		switch v.kind {
		case KindString:
			if textSafe(v.s) {
				a.String = v.s
			} else {
				a.Raw = true
				a.Data = []byte(v.s)
			}
		case KindBytes:
			a.Data = v.b
		case KindInteger:
			a.Integer = v.i
		case KindRecord:
			a.Record = v.r.toPlist()
		}
		ps.Attributes = append(ps.Attributes, a)
	}
	return ps
}

func fromPlist(ps *plistState) (*State, error) {
	s := NewState()
	if ps == nil {
		return s, nil
	}
	for _, a := range ps.Attributes {
		var v Value
		switch kindForString(a.Kind) {
		case KindString:
			if a.Raw {
				v = StringValue(string(a.Data))
			} else {
				v = StringValue(a.String)
			}
		case KindBytes:
			v = BytesValue(a.Data)
		case KindInteger:
			v = IntegerValue(a.Integer)
		case KindRecord:
			r, err := fromPlist(a.Record)
			if err != nil {
				return nil, fmt.Errorf("record %s: %w", a.Name, err)
			}
			v = RecordValue(r)
		default:
			return nil, fmt.Errorf("%w: %s: unknown kind %q", ErrWrongKind, a.Name, a.Kind)
		}
		if err := s.Register(a.Name, v); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// MarshalBinary converts s into a property list.
func (s *State) MarshalBinary() ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil value")
	}
	return plist.Marshal(s.toPlist())
}

// UnmarshalBinary loads the property list in data into s.
// Any existing attributes in s are replaced.
func (s *State) UnmarshalBinary(data []byte) error {
	if s == nil {
		return errors.New("nil value")
	}
	ps := new(plistState)
	if err := plist.Unmarshal(data, ps); err != nil {
		return fmt.Errorf("unmarshal state: %w", err)
	}
	restored, err := fromPlist(ps)
	if err != nil {
		return err
	}
	*s = *restored
	return nil
}
