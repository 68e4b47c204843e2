package models

import (
	"strings"
)

// SignatureKind classifies a field signature.
type SignatureKind int

const (
	KindScalar SignatureKind = iota
	KindRef
	KindArray
	KindObject
	KindUnion
)

// Signature is a parsed field type such as "String", "Ref<User>?",
// "Array<Ref<Tag>>" or "Date | Null".
type Signature struct {
	Raw      string
	Kind     SignatureKind
	Name     string // scalar name, or target collection for KindRef
	Elem     *Signature
	Variants []Signature
	Props    map[string]Signature
	Optional bool
}

// ParseSignature parses a field signature. Unknown forms are kept as
// scalars named by their trimmed text.
func ParseSignature(s string) Signature {
	sig := parseSignature(strings.TrimSpace(s))
	sig.Raw = s
	return sig
}

func parseSignature(s string) Signature {
	var sig Signature
	if strings.HasSuffix(s, "?") {
		sig.Optional = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "?"))
	}
	if parts := splitTopLevel(s, '|'); len(parts) > 1 {
		variants := make([]Signature, 0, len(parts))
		for _, p := range parts {
			if p == "Null" {
				sig.Optional = true
				continue
			}
			variants = append(variants, parseSignature(p))
		}
		if len(variants) == 1 {
			v := variants[0]
			v.Optional = v.Optional || sig.Optional
			return v
		}
		sig.Kind = KindUnion
		sig.Variants = variants
		return sig
	}
	switch {
	case strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}"):
		sig.Kind = KindObject
		sig.Props = map[string]Signature{}
		for _, prop := range splitTopLevel(s[1:len(s)-1], ',') {
			k, v, ok := strings.Cut(prop, ":")
			if !ok {
				continue
			}
			k = strings.Trim(strings.TrimSpace(k), `"`)
			sig.Props[k] = parseSignature(strings.TrimSpace(v))
		}
	case strings.HasPrefix(s, "Array<") && strings.HasSuffix(s, ">"):
		elem := parseSignature(strings.TrimSpace(s[len("Array<") : len(s)-1]))
		sig.Kind = KindArray
		sig.Elem = &elem
	case strings.HasPrefix(s, "Ref<") && strings.HasSuffix(s, ">"):
		sig.Kind = KindRef
		sig.Name = strings.TrimSpace(s[len("Ref<") : len(s)-1])
	default:
		sig.Kind = KindScalar
		sig.Name = s
	}
	return sig
}

func splitTopLevel(s string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{', '<':
			depth++
		case '}', '>':
			depth--
		case sep:
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	parts = append(parts, strings.TrimSpace(s[start:]))
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// RefTarget reports the collection a reference field points at, and
// whether the field holds an array of references.
func (s Signature) RefTarget() (coll string, many bool, ok bool) {
	switch s.Kind {
	case KindRef:
		return s.Name, false, true
	case KindArray:
		if s.Elem.Kind == KindRef {
			return s.Elem.Name, true, true
		}
	}
	return "", false, false
}

// Is reports whether s is the scalar name, ignoring optionality.
func (s Signature) Is(name string) bool {
	return s.Kind == KindScalar && s.Name == name
}

// DefaultComputedValue is the placeholder a computed field holds locally
// until the service returns its real value.
func DefaultComputedValue(signature string) any {
	sig := ParseSignature(signature)
	switch {
	case sig.Kind == KindRef:
		return nil
	case sig.Kind == KindObject:
		return map[string]any{}
	}
	switch sig.Name {
	case "Number", "Int", "Long":
		return int64(0)
	case "Double":
		return float64(0)
	case "String":
		return ""
	case "Boolean":
		return false
	case "Date":
		return Today()
	case "Time":
		return Now()
	case "Object":
		return map[string]any{}
	}
	return nil
}
