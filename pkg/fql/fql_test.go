package fql

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Etesie/fauna-typed/pkg/models"
)

var postDef = models.Collection{
	Name: "Post",
	Fields: map[string]models.Field{
		"title":     {Signature: "String"},
		"author":    {Signature: "Ref<User>?"},
		"tags":      {Signature: "Array<Ref<Tag>>"},
		"published": {Signature: "Time?"},
		"day":       {Signature: "Date"},
	},
}

func TestColl_queries(t *testing.T) {
	t.Parallel()

	post := From("Post")
	assert.Equal(t, "Post.all()", post.All().FQL())
	assert.Equal(t, "Post.all().first()", post.First().FQL())
	assert.Equal(t, "Post.all().last()", post.Last().FQL())
	assert.Equal(t, `Post.byId('42')`, post.Doc("42").FQL())
	assert.Equal(t, `Post.byId('42')!.delete()`, post.Delete("42").FQL())
	assert.Equal(t, `Post.all().pageSize(16)`, PageSize(post.All(), 16).FQL())
	assert.Equal(t, `Set.paginate('hdW...')`, Paginate("hdW...").FQL())
	assert.Equal(t, `Post.where((doc) => doc.title == 'hi')`, post.Where(Eq("title", "hi")).FQL())
	assert.Equal(t, `Post.firstWhere((doc) => doc.views > 3)`, post.FirstWhere(Gt("views", 3)).FQL())

	coll := FromNamed("Collection")
	assert.Equal(t, `Collection.byName('Post')`, coll.Doc("Post").FQL())
}

func TestObjects(t *testing.T) {
	t.Parallel()

	published := models.NewTimeStub(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	data := map[string]any{
		"title":     "hello",
		"author":    models.DocumentReference{ID: "7", Coll: models.Module{Name: "User"}},
		"tags":      []any{"1", map[string]any{"id": "2"}},
		"published": published,
		"day":       "2024-05-01",
		"ignored":   true,
	}

	t.Run("create", func(t *testing.T) {
		obj := CreateObject(postDef, "TEMP_x", nil, data)
		assert.Equal(t,
			`{'author':User.byId('7'),'day':Date('2024-05-01'),'published':Time('2024-05-01T12:00:00Z'),'tags':[Tag.byId('1'), Tag.byId('2')],'title':'hello'}`,
			obj.FQL())
		assert.Equal(t,
			`Post.create({'id':'9','title':'x'})`,
			From("Post").Create(CreateObject(postDef, "9", nil, map[string]any{"title": "x"})).FQL())
		assert.NotContains(t, obj.Keys(), models.FieldTTL)

		ttl := published
		withTTL := CreateObject(postDef, "", &ttl, map[string]any{"title": "x"})
		assert.Equal(t, `{'ttl':Time('2024-05-01T12:00:00Z'),'title':'x'}`, withTTL.FQL())
	})

	t.Run("update", func(t *testing.T) {
		obj := UpdateObject(postDef, nil, false, map[string]any{"title": "new", "author": nil})
		assert.Equal(t, `Post.byId('1')!.update({'author':null,'title':'new'})`, From("Post").Update("1", obj).FQL())
	})

	t.Run("replace", func(t *testing.T) {
		ttl := published
		obj := ReplaceObject(postDef, &ttl, map[string]any{"title": "only"})
		assert.Equal(t,
			`{'ttl':Time('2024-05-01T12:00:00Z'),'author':null,'day':null,'published':null,'tags':null,'title':'only'}`,
			obj.FQL())
	})

	t.Run("no declared fields", func(t *testing.T) {
		obj := UpdateObject(models.Collection{Name: "Loose"}, nil, false, map[string]any{"b": int64(2), "a": "x"})
		assert.Equal(t, `{'a':'x','b':2}`, obj.FQL())
	})
}

func TestValue(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "null", Value(nil))
	assert.Equal(t, "3", Value(3))
	assert.Equal(t, "2.5", Value(2.5))
	assert.Equal(t, `'it\'s "quoted"'`, Value(`it's "quoted"`))
	assert.Equal(t, `'a\\b\nc\u0000'`, Value("a\\b\nc\x00"))
	assert.Equal(t, `[1, 'a', true]`, Value([]any{1, "a", true}))
	assert.Equal(t, `{'a':{'b':null}}`, Value(map[string]any{"a": map[string]any{"b": nil}}))
	assert.Equal(t, `User.byId('it\'s')`, Value(models.DocumentReference{ID: "it's", Coll: models.Module{Name: "User"}}))
	assert.Equal(t, `doc.address.city`, Path("doc", "address.city"))
	assert.Equal(t, `doc['first name']`, Path("doc", "first name"))
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	doc := models.Document{
		ID:   "1",
		Coll: models.Module{Name: "User"},
		Data: map[string]any{
			"name":    "ada",
			"age":     int64(36),
			"address": map[string]any{"city": "London"},
		},
	}

	testcases := []struct {
		name  string
		pred  Predicate
		fql   string
		match bool
	}{
		{"eq", Eq("name", "ada"), `doc.name == 'ada'`, true},
		{"eq id", Eq("id", "1"), `doc.id == '1'`, true},
		{"ne", Ne("name", "bob"), `doc.name != 'bob'`, true},
		{"lt", Lt("age", 30), `doc.age < 30`, false},
		{"lte", Lte("age", 36), `doc.age <= 36`, true},
		{"gte float", Gte("age", 35.5), `doc.age >= 35.5`, true},
		{"missing", Gt("height", 1), `doc.height > 1`, false},
		{"nested", Eq("address.city", "London"), `doc.address.city == 'London'`, true},
		{"and", And(Eq("name", "ada"), Gt("age", 40)), `(doc.name == 'ada' && doc.age > 40)`, false},
		{"or", Or(Eq("name", "bob"), Gt("age", 30)), `(doc.name == 'bob' || doc.age > 30)`, true},
		{"not", Not(Eq("name", "ada")), `!(doc.name == 'ada')`, false},
		{"empty and", And(), `true`, true},
		{"empty or", Or(), `false`, false},
		{
			"func",
			Func("(u) => u.age > 18", func(d models.Document) bool { return d.Data["age"].(int64) > 18 }),
			`((u) => u.age > 18)(doc)`,
			true,
		},
	}

	for _, tc := range testcases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.fql, tc.pred.Cond("doc"))
			assert.Equal(t, tc.match, tc.pred.Match(doc))
		})
	}
}

func TestQuote_interpolationStaysInert(t *testing.T) {
	t.Parallel()

	evil := `#{Post.all().forEach(.delete())}`
	rendered := []string{
		Value(evil),
		Value(map[string]any{evil: evil}),
		From("Post").Doc(evil).FQL(),
		FromNamed("Collection").Doc(evil).FQL(),
		Paginate(evil).FQL(),
		Eq("title", evil).Cond("doc"),
		CreateObject(postDef, evil, nil, map[string]any{"title": evil}).FQL(),
		Value(struct{ Title string }{evil}),
	}
	for _, q := range rendered {
		assert.NotContains(t, q, `"`, q)
		assert.Contains(t, q, `'`+evil+`'`, q)
	}

	assert.Equal(t, `doc['#{x}']`, Path("doc", "#{x}"))
	assert.Equal(t, `'\'); Post.all()'`, Value(`'); Post.all()`))
}
