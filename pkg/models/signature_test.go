package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSignature(t *testing.T) {
	t.Parallel()

	testcases := []struct {
		in       string
		kind     SignatureKind
		name     string
		optional bool
	}{
		{in: "String", kind: KindScalar, name: "String"},
		{in: "Number?", kind: KindScalar, name: "Number", optional: true},
		{in: "Ref<User>", kind: KindRef, name: "User"},
		{in: "Ref<User>?", kind: KindRef, name: "User", optional: true},
		{in: "Ref<User> | Null", kind: KindRef, name: "User", optional: true},
		{in: "Date | Null", kind: KindScalar, name: "Date", optional: true},
		{in: "String | Number", kind: KindUnion},
		{in: "{ a: String, b: { c: Int } }", kind: KindObject},
		{in: "Array<Ref<Tag>>", kind: KindArray},
	}

	for _, tc := range testcases {
		t.Run(tc.in, func(t *testing.T) {
			sig := ParseSignature(tc.in)
			assert.Equal(t, tc.in, sig.Raw)
			assert.Equal(t, tc.kind, sig.Kind)
			assert.Equal(t, tc.name, sig.Name)
			assert.Equal(t, tc.optional, sig.Optional)
		})
	}
}

func TestSignature_RefTarget(t *testing.T) {
	t.Parallel()

	coll, many, ok := ParseSignature("Ref<User>?").RefTarget()
	assert.True(t, ok)
	assert.False(t, many)
	assert.Equal(t, "User", coll)

	coll, many, ok = ParseSignature("Array<Ref<Tag>>").RefTarget()
	assert.True(t, ok)
	assert.True(t, many)
	assert.Equal(t, "Tag", coll)

	_, _, ok = ParseSignature("Array<String>").RefTarget()
	assert.False(t, ok)

	obj := ParseSignature("{ a: String, b: { c: Int } }")
	assert.True(t, obj.Props["a"].Is("String"))
	assert.Equal(t, KindObject, obj.Props["b"].Kind)
	assert.True(t, obj.Props["b"].Props["c"].Is("Int"))
}

func TestDefaultComputedValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(0), DefaultComputedValue("Number"))
	assert.Equal(t, "", DefaultComputedValue("String"))
	assert.Equal(t, false, DefaultComputedValue("Boolean"))
	assert.Equal(t, map[string]any{}, DefaultComputedValue("Object"))
	assert.Nil(t, DefaultComputedValue("Ref<User>"))
	assert.IsType(t, DateStub{}, DefaultComputedValue("Date"))
	assert.IsType(t, TimeStub{}, DefaultComputedValue("Time"))
	assert.Nil(t, DefaultComputedValue("Whatever"))
}
