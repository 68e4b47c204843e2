package fql

import (
	"strconv"
)

// Coll is a collection as the target of a query.
type Coll struct {
	name  string
	named bool
}

// From returns the query target for a collection whose documents are
// identified by id.
func From(name string) Coll {
	return Coll{name: name}
}

// FromNamed returns the query target for a collection whose documents are
// identified by name, such as the system collection.
func FromNamed(name string) Coll {
	return Coll{name: name, named: true}
}

func (c Coll) Name() string { return c.name }

func (c Coll) FQL() string { return c.name }

func (c Coll) All() Raw {
	return Raw(c.name + ".all()")
}

func (c Coll) Where(p Predicate) Raw {
	return Raw(c.name + ".where(" + Lambda(p) + ")")
}

func (c Coll) First() Raw {
	return Raw(c.name + ".all().first()")
}

func (c Coll) Last() Raw {
	return Raw(c.name + ".all().last()")
}

func (c Coll) FirstWhere(p Predicate) Raw {
	return Raw(c.name + ".firstWhere(" + Lambda(p) + ")")
}

func (c Coll) ByID(id string) Raw {
	return Raw(c.name + ".byId(" + quote(id) + ")")
}

func (c Coll) ByName(name string) Raw {
	return Raw(c.name + ".byName(" + quote(name) + ")")
}

// Doc looks a document up by the collection's identity kind.
func (c Coll) Doc(key string) Raw {
	if c.named {
		return c.ByName(key)
	}
	return c.ByID(key)
}

func (c Coll) Create(obj Object) Raw {
	return Raw(c.name + ".create(" + obj.FQL() + ")")
}

func (c Coll) Update(key string, obj Object) Raw {
	return Raw(c.Doc(key).FQL() + "!.update(" + obj.FQL() + ")")
}

func (c Coll) Replace(key string, obj Object) Raw {
	return Raw(c.Doc(key).FQL() + "!.replace(" + obj.FQL() + ")")
}

func (c Coll) Delete(key string) Raw {
	return Raw(c.Doc(key).FQL() + "!.delete()")
}

// PageSize limits the page size of a set expression.
func PageSize(set Expr, n int) Raw {
	return Raw(set.FQL() + ".pageSize(" + strconv.Itoa(n) + ")")
}

// Paginate continues a set from a cursor.
func Paginate(cursor string) Raw {
	return Raw("Set.paginate(" + quote(cursor) + ")")
}
