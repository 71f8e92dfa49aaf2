package state

import (
	"errors"
	"fmt"
	"reflect"
)

var (
	// ErrUnknownVariant is returned for values or variant types outside the declared schema.
	ErrUnknownVariant = errors.New("state: unknown variant")
	// ErrInvalidSchema reports a schema declaration that cannot be used.
	ErrInvalidSchema = errors.New("state: invalid schema")
)

// Variant is one case of a bot's state type.
type Variant struct {
	name string
	typ  reflect.Type
}

// VariantOf describes the variant type V.
func VariantOf[V any]() Variant {
	t := reflect.TypeOf((*V)(nil)).Elem()
	return Variant{name: typeName(t), typ: t}
}

// Name is the Go type name of the variant without package or pointer.
func (v Variant) Name() string { return v.name }

// Type returns the concrete Go type of the variant.
func (v Variant) Type() reflect.Type { return v.typ }

func (v Variant) String() string { return v.name }

func typeName(t reflect.Type) string {
	if t == nil {
		return ""
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Schema is the closed set of variants a state type S may hold.
type Schema[S any] struct {
	variants []Variant
	byType   map[reflect.Type]Variant
	byName   map[string]Variant
}

// NewSchema declares the variants of S. Each variant must be a named type assignable to S,
// and names must be unique.
func NewSchema[S any](variants ...Variant) (*Schema[S], error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("%w: no variants", ErrInvalidSchema)
	}
	target := reflect.TypeOf((*S)(nil)).Elem()
	s := &Schema[S]{
		byType: make(map[reflect.Type]Variant, len(variants)),
		byName: make(map[string]Variant, len(variants)),
	}
	for _, v := range variants {
		if v.typ == nil || v.name == "" {
			return nil, fmt.Errorf("%w: variant %v has no type name", ErrInvalidSchema, v.typ)
		}
		if target.Kind() == reflect.Interface && v.typ.Kind() == reflect.Interface {
			return nil, fmt.Errorf("%w: variant %s is an interface", ErrInvalidSchema, v.name)
		}
		if !v.typ.AssignableTo(target) {
			return nil, fmt.Errorf("%w: %s is not assignable to %s", ErrInvalidSchema, v.typ, target)
		}
		if _, dup := s.byName[v.name]; dup {
			return nil, fmt.Errorf("%w: duplicate variant name %q", ErrInvalidSchema, v.name)
		}
		s.variants = append(s.variants, v)
		s.byType[v.typ] = v
		s.byName[v.name] = v
	}
	return s, nil
}

// MustSchema is NewSchema that panics on error, for package-level declarations.
func MustSchema[S any](variants ...Variant) *Schema[S] {
	s, err := NewSchema[S](variants...)
	if err != nil {
		panic(err)
	}
	return s
}

// Of resolves the variant currently held by s.
func (s *Schema[S]) Of(value S) (Variant, bool) {
	t := reflect.TypeOf(any(value))
	if t == nil {
		return Variant{}, false
	}
	v, ok := s.byType[t]
	return v, ok
}

// ByName resolves a variant by its name.
func (s *Schema[S]) ByName(name string) (Variant, bool) {
	v, ok := s.byName[name]
	return v, ok
}

// Has reports whether v belongs to the schema.
func (s *Schema[S]) Has(v Variant) bool {
	got, ok := s.byType[v.typ]
	return ok && got.name == v.name
}

// Variants lists the declared variants in declaration order.
func (s *Schema[S]) Variants() []Variant {
	out := make([]Variant, len(s.variants))
	copy(out, s.variants)
	return out
}
