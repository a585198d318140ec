package store

import (
	"context"
	"database/sql"
)

// Stores accept the narrowest of these so the same method runs on *sqlx.DB
// or inside a *sqlx.Tx.

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

type Tx interface {
	Execer
	Getter
}

type Reader interface {
	Getter
	Selecter
}
