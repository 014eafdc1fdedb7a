package converter

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	name   string
	args   []string
	stderr string
	err    error
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	f.name = name
	f.args = args

	return nil, []byte(f.stderr), f.err
}

func TestParseDatastoreURL(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    PGConnection
		wantErr bool
	}{
		{
			name: "full url",
			raw:  "postgres://geonode:secret@db:5433/geonode_data",
			want: PGConnection{Host: "db", Port: "5433", Database: "geonode_data", User: "geonode", Password: "secret"},
		},
		{
			name: "default port",
			raw:  "postgis://geonode@db/geonode_data",
			want: PGConnection{Host: "db", Port: "5432", Database: "geonode_data", User: "geonode"},
		},
		{name: "wrong scheme", raw: "mysql://db/x", wantErr: true},
		{name: "missing database", raw: "postgres://db", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDatastoreURL(tt.raw)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDatastoreURL)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestArgs(t *testing.T) {
	conn := PGConnection{Host: "db", Port: "5432", Database: "data", User: "u", Password: "p"}

	args := Args(conn, "/tmp/roads.gpkg", "Roads", "roads", true)

	assert.Equal(t, []string{
		"--config", "PG_USE_COPY", "YES",
		"-f", "PostgreSQL", "PG: dbname='data' host=db port=5432 user='u' password='p' ",
		"/tmp/roads.gpkg",
		"-lco", "DIM=2",
		"-nln", "roads", "Roads",
		"-overwrite",
	}, args)

	assert.NotContains(t, Args(conn, "/tmp/roads.gpkg", "Roads", "roads", false), "-overwrite")
}

func TestConverter_Run(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("success", func(t *testing.T) {
		runner := &fakeRunner{stderr: "Warning 1: something harmless"}
		c := New(runner, "/usr/bin/ogr2ogr", logger)

		require.NoError(t, c.Run(context.Background(), []string{"a"}, "roads"))
		assert.Equal(t, "/usr/bin/ogr2ogr", runner.name)
	})

	t.Run("error in stderr with clean exit", func(t *testing.T) {
		c := New(&fakeRunner{stderr: "ERROR 1: relation exists\n"}, "ogr2ogr", logger)

		err := c.Run(context.Background(), nil, "roads")
		require.Error(t, err)
		assert.Equal(t, "ERROR 1: relation exists for layer roads", err.Error())
	})

	t.Run("exit failure", func(t *testing.T) {
		cause := errors.New("exit status 1")
		c := New(&fakeRunner{err: cause}, "ogr2ogr", logger)

		assert.ErrorIs(t, c.Run(context.Background(), nil, "roads"), cause)
	})
}
