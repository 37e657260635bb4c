package globals

import (
	"context"
	"database/sql"
	"webopac/internal/components/chrono"
	"webopac/internal/components/telemetry"
	"webopac/internal/config"
	"webopac/internal/libsys"
	"webopac/internal/sessionstore"
)

type key struct{}

type Value struct {
	Config config.Config
	Client *libsys.Client
	DB     *sql.DB
	Store  sessionstore.Store
	Clock  chrono.API
	Tel    telemetry.API
	// Json prints raw envelopes instead of tables.
	Json    bool
	Account string
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, key{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(key{}).(*Value)
}
