// Package backendcfg persists configured backend instances: a named
// pairing of a module with the parameters (credentials, site options)
// it should run with.
package backendcfg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "embed"

	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("pagekit.lib.backendcfg")

//go:embed schema.sql
var Schema string

var ErrNotFound = errors.New("backend not found")

// Backend is a configured instance of a module. Several backends may
// share a module, each with its own name and parameters.
type Backend struct {
	Name    string
	Module  string
	Params  map[string]string
	Created time.Time
}

type Store struct {
	db *sql.DB
}

func NewStore(database *sql.DB) (Store, error) {
	_, err := database.Exec(Schema)
	if err != nil {
		return Store{}, err
	}
	return Store{db: database}, nil
}

func Open(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return Store{}, err
	}
	return NewStore(database)
}

// InstanceName produces a fresh backend name for the given module.
func InstanceName(module string) (string, error) {
	suffix, err := random.String(8)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s", module, suffix), nil
}

func (s Store) Save(ctx context.Context, backend Backend) error {
	ctx, span := tracer.Start(ctx, "Save")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	created := backend.Created
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(
		ctx,
		`insert into backend (name, module, created_at) values (?, ?, ?)
		on conflict (name) do update set module = excluded.module`,
		backend.Name, backend.Module, created.Unix(),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upsert backend row")
		return err
	}

	_, err = tx.ExecContext(ctx, `delete from backend_param where backend = ?`, backend.Name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to clear backend params")
		return err
	}
	for key, value := range backend.Params {
		_, err = tx.ExecContext(
			ctx,
			`insert into backend_param (backend, key, value) values (?, ?, ?)`,
			backend.Name, key, value,
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to insert backend param")
			return err
		}
	}

	return tx.Commit()
}

func (s Store) Get(ctx context.Context, name string) (Backend, error) {
	ctx, span := tracer.Start(ctx, "Get")
	defer span.End()

	row := s.db.QueryRowContext(
		ctx,
		`select name, module, created_at from backend where name = ?`,
		name,
	)
	var out Backend
	var createdAt int64
	err := row.Scan(&out.Name, &out.Module, &createdAt)
	if err == sql.ErrNoRows {
		return Backend{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read backend row")
		return Backend{}, err
	}
	out.Created = time.Unix(createdAt, 0)

	out.Params, err = s.params(ctx, name)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to read backend params")
		return Backend{}, err
	}
	return out, nil
}

func (s Store) params(ctx context.Context, name string) (map[string]string, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`select key, value from backend_param where backend = ?`,
		name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	params := map[string]string{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		params[key] = value
	}
	return params, rows.Err()
}

func (s Store) List(ctx context.Context) ([]Backend, error) {
	ctx, span := tracer.Start(ctx, "List")
	defer span.End()

	rows, err := s.db.QueryContext(
		ctx,
		`select name from backend order by created_at, name`,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list backends")
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []Backend
	for _, name := range names {
		backend, err := s.Get(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, backend)
	}
	return out, nil
}

func (s Store) Delete(ctx context.Context, name string) error {
	ctx, span := tracer.Start(ctx, "Delete")
	defer span.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `delete from backend_param where backend = ?`, name)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `delete from backend where name = ?`, name)
	if err != nil {
		return err
	}
	return tx.Commit()
}
