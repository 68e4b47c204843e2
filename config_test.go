package faunatyped_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	faunatyped "github.com/Etesie/fauna-typed"
	"github.com/Etesie/fauna-typed/internal/mock"
	"github.com/Etesie/fauna-typed/pkg/constants"
	"github.com/Etesie/fauna-typed/pkg/persistence"
)

func TestNewConfig_defaults(t *testing.T) {
	for _, key := range []string{faunatyped.EnvEndpoint, faunatyped.EnvSecret, faunatyped.EnvCacheDir, faunatyped.EnvPageSize, faunatyped.EnvFormat} {
		t.Setenv(key, "")
	}

	c := faunatyped.NewConfig()
	assert.Equal(t, constants.DefaultEndpoint, c.Endpoint)
	assert.Empty(t, c.Secret)
	assert.Equal(t, faunatyped.FormatJSON, c.Format)
	assert.Equal(t, constants.DefaultPageSize, c.PageSize)
	assert.Equal(t, constants.DefaultHistoryLimit, c.HistoryLimit)
	assert.NotNil(t, c.Logger)
	assert.ErrorIs(t, c.Validate(), constants.ErrNoSecret)
}

func TestNewConfig_environment(t *testing.T) {
	t.Setenv(faunatyped.EnvEndpoint, "http://localhost:8443")
	t.Setenv(faunatyped.EnvSecret, "s3cret")
	t.Setenv(faunatyped.EnvCacheDir, "/tmp/cache")
	t.Setenv(faunatyped.EnvPageSize, "50")
	t.Setenv(faunatyped.EnvFormat, "CBOR")

	c := faunatyped.NewConfig()
	assert.Equal(t, "http://localhost:8443", c.Endpoint)
	assert.Equal(t, "s3cret", c.Secret)
	assert.Equal(t, "/tmp/cache", c.CacheDir)
	assert.Equal(t, 50, c.PageSize)
	assert.NoError(t, c.Validate())
}

func TestNewConfig_badPageSizeFallsBack(t *testing.T) {
	t.Setenv(faunatyped.EnvPageSize, "many")
	assert.Equal(t, constants.DefaultPageSize, faunatyped.NewConfig().PageSize)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() faunatyped.Config {
		return faunatyped.Config{Endpoint: "https://db.example", Secret: "s", PageSize: 10}
	}
	tests := []struct {
		name   string
		mutate func(*faunatyped.Config)
		want   error
	}{
		{"valid", func(*faunatyped.Config) {}, nil},
		{"no endpoint", func(c *faunatyped.Config) { c.Endpoint = "" }, constants.ErrNoBaseURL},
		{"no secret", func(c *faunatyped.Config) { c.Secret = "" }, constants.ErrNoSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			err := c.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}

	for name, mutate := range map[string]func(*faunatyped.Config){
		"scheme":    func(c *faunatyped.Config) { c.Endpoint = "db.example" },
		"format":    func(c *faunatyped.Config) { c.Format = "xml" },
		"page size": func(c *faunatyped.Config) { c.PageSize = 0 },
	} {
		t.Run(name, func(t *testing.T) {
			c := valid()
			mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestConfig_ConnectValidatesFirst(t *testing.T) {
	c := faunatyped.Config{Endpoint: "https://db.example", PageSize: 1}
	gw, err := c.Connect(context.Background())
	assert.Nil(t, gw)
	assert.ErrorIs(t, err, constants.ErrNoSecret)
}

func TestConfig_OpenPersistence(t *testing.T) {
	mem, err := (&faunatyped.Config{}).OpenPersistence()
	require.NoError(t, err)
	assert.IsType(t, &persistence.Memory{}, mem)

	file, err := (&faunatyped.Config{CacheDir: t.TempDir(), Format: faunatyped.FormatCBOR}).OpenPersistence()
	require.NoError(t, err)
	assert.IsType(t, &persistence.File{}, file)

	_, err = (&faunatyped.Config{CacheDir: t.TempDir(), Format: "xml"}).OpenPersistence()
	assert.Error(t, err)
}

func TestConfig_Options(t *testing.T) {
	c := faunatyped.Config{HistoryLimit: 1}
	stores := faunatyped.New(nil, nil, c.Options()...)
	st, err := stores.Register("Item")
	require.NoError(t, err)

	for _, v := range []int64{1, 2, 3} {
		_, err := st.Upsert(item("1", v), "")
		require.NoError(t, err)
	}
	undo, _ := st.History()
	assert.Equal(t, 1, undo)

	c = faunatyped.Config{PageSize: 1}
	stores = faunatyped.New(mock.New(), nil, c.Options()...)
	st, err = stores.Register("Item")
	require.NoError(t, err)
	for _, id := range []string{"1", "2"} {
		_, err := st.Upsert(item(id, 1), "")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"1"}, st.All(context.Background()).Keys())
	require.NoError(t, st.Wait(context.Background()))
}
