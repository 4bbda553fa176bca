// Package postgres implements account.Store on PostgreSQL with pgx and
// squirrel. Every mutation is one UPDATE guarded by the expected statuses and
// returning the written row.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/MrEthical07/authcore/account"
	"github.com/MrEthical07/authcore/permission"
)

const (
	table         = "accounts"
	uniqueViolate = "23505"
)

var columns = []string{
	"id", "email", "password_hash", "role", "status", "token_version",
	"created_at", "updated_at", "deleted_at",
}

// pgExecutor is satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements account.Store on Postgres.
type Store struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// New wraps exec, typically a *pgxpool.Pool, with dollar placeholders.
func New(exec pgExecutor) *Store {
	return &Store{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (s *Store) Create(ctx context.Context, a account.Account) (account.Account, error) {
	stmt, args, err := s.builder.Insert(table).
		Columns("id", "email", "password_hash", "role", "status", "token_version").
		Values(a.ID, a.Email, a.PasswordHash, string(a.Role), string(a.Status), int64(a.TokenVersion)).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return account.Account{}, fmt.Errorf("build insert account sql: %w", err)
	}

	out, err := scanAccount(s.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolate {
			return account.Account{}, account.ErrEmailTaken
		}
		return account.Account{}, classify("insert account", err)
	}
	return out, nil
}

func (s *Store) GetByID(ctx context.Context, id string) (account.Account, error) {
	return s.getOne(ctx, squirrel.Eq{"id": id})
}

func (s *Store) GetByEmail(ctx context.Context, email string) (account.Account, error) {
	return s.getOne(ctx, squirrel.And{
		squirrel.Eq{"email": email},
		squirrel.NotEq{"status": string(account.StatusDeleted)},
	})
}

func (s *Store) getOne(ctx context.Context, where squirrel.Sqlizer) (account.Account, error) {
	stmt, args, err := s.builder.Select(columns...).
		From(table).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return account.Account{}, fmt.Errorf("build select account sql: %w", err)
	}

	a, err := scanAccount(s.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		return account.Account{}, classify("select account", err)
	}
	return a, nil
}

func (s *Store) Transition(ctx context.Context, id string, from []account.Status, to account.Status, bump bool) (account.Account, error) {
	if err := account.ValidateTransition(from, to); err != nil {
		return account.Account{}, err
	}

	q := s.builder.Update(table).Set("status", string(to))
	if bump {
		q = q.Set("token_version", squirrel.Expr("token_version + 1"))
	}
	if to == account.StatusDeleted {
		q = q.Set("deleted_at", squirrel.Expr("now()"))
	}
	return s.conditionalUpdate(ctx, q, id, from)
}

func (s *Store) UpdatePassword(ctx context.Context, id string, from []account.Status, hash string) (account.Account, error) {
	q := s.builder.Update(table).
		Set("password_hash", hash).
		Set("token_version", squirrel.Expr("token_version + 1"))
	return s.conditionalUpdate(ctx, q, id, from)
}

func (s *Store) UpdateRole(ctx context.Context, id string, role permission.Role) (account.Account, error) {
	q := s.builder.Update(table).
		Set("role", string(role)).
		Set("token_version", squirrel.Expr("token_version + 1"))
	return s.conditionalUpdate(ctx, q, id, account.LiveStatuses())
}

func (s *Store) conditionalUpdate(ctx context.Context, q squirrel.UpdateBuilder, id string, from []account.Status) (account.Account, error) {
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}

	stmt, args, err := q.
		Set("updated_at", squirrel.Expr("now()")).
		Where(squirrel.Eq{"id": id}).
		Where(squirrel.Eq{"status": statuses}).
		Suffix("RETURNING " + strings.Join(columns, ", ")).
		ToSql()
	if err != nil {
		return account.Account{}, fmt.Errorf("build update account sql: %w", err)
	}

	a, err := scanAccount(s.exec.QueryRow(ctx, stmt, args...))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return account.Account{}, classify("update account", err)
	}

	// Zero rows: either the id is unknown or the status precondition missed.
	if _, getErr := s.GetByID(ctx, id); getErr != nil {
		return account.Account{}, getErr
	}
	return account.Account{}, account.ErrStateConflict
}

func scanAccount(row pgx.Row) (account.Account, error) {
	var (
		a            account.Account
		role, status string
		version      int64
		deletedAt    pgtype.Timestamptz
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &status, &version, &a.CreatedAt, &a.UpdatedAt, &deletedAt); err != nil {
		return account.Account{}, err
	}
	a.Role = permission.Role(role)
	a.Status = account.Status(status)
	a.TokenVersion = uint64(version)
	if deletedAt.Valid {
		t := deletedAt.Time
		a.DeletedAt = &t
	}
	return a, nil
}

// classify maps driver errors onto the account sentinels. Anything that is not
// a server-reported statement error is treated as the store being unavailable.
func classify(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return account.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// class 08: connection exception, 57P: operator intervention
		if strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P") {
			return fmt.Errorf("%w: %s: %v", account.ErrUnavailable, op, err)
		}
		// class 22: data exception. A key that cannot be cast to uuid names
		// no row.
		if strings.HasPrefix(pgErr.Code, "22") {
			return fmt.Errorf("%w: %s: %v", account.ErrNotFound, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%w: %s: %v", account.ErrUnavailable, op, err)
}
