package auth

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"
)

const pgUniqueViolation = "23505"

var bunTxKey = &contextKey{"bun_tx"}

var _ UserRepository = (*Users)(nil)

// Users is the bun backed UserRepository. It works against postgres
// (pgdialect) and sqlite (sqlitedialect). The embedded repository gives
// callers the generic CRUD surface over the same table.
type Users struct {
	repository.Repository[*User]
	db *bun.DB
}

// NewUsersRepository returns a repository over db
func NewUsersRepository(db *bun.DB) *Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			id, err := uuid.Parse(u.ID)
			if err != nil {
				return uuid.Nil
			}
			return id
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id.String()
			}
		},
		GetIdentifier: func() string {
			return string(ColumnUsername)
		},
	})

	return &Users{
		Repository: repo,
		db:         db,
	}
}

// DB returns the underlying handle
func (r *Users) DB() *bun.DB {
	return r.db
}

func (r *Users) CreateUser(ctx context.Context, user *User) (string, error) {
	if user == nil || user.ID == "" {
		return "", withDetail(ErrBadInput, "user id is required", nil, nil)
	}

	if _, err := r.Repository.CreateTx(ctx, r.idb(ctx), user); err != nil {
		return "", mapWriteError(err, "failed to insert user")
	}
	return user.ID, nil
}

// ByColumn selects the row whose column equals value
func ByColumn(column Column, value string) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("?TableAlias.? = ?", bun.Ident(string(column)), value)
	}
}

func (r *Users) GetUserByColumn(ctx context.Context, column Column, value string) (*User, error) {
	if !column.IsLookup() {
		return nil, withDetail(ErrBadInput, "column is not a lookup column", nil, map[string]any{
			"column": string(column),
		})
	}

	record := &User{}
	err := r.idb(ctx).NewSelect().
		Model(record).
		Apply(ByColumn(column, value)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) {
			return nil, withDetail(ErrUserNotFound, "", nil, map[string]any{
				"column": string(column),
			})
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to select user")
	}
	return record, nil
}

// UpdateUserByUserID writes exactly fields. It goes through bun directly
// because the generic update skips columns set back to NULL.
func (r *Users) UpdateUserByUserID(ctx context.Context, user *User, fields []Column, id string) (int64, error) {
	if err := checkWritable(fields); err != nil {
		return 0, err
	}

	columns := make([]string, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, string(f))
	}

	res, err := r.idb(ctx).NewUpdate().
		Model(user).
		Column(columns...).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, mapWriteError(err, "failed to update user")
	}
	return rowsAffected(res)
}

func (r *Users) DeleteUserByUserID(ctx context.Context, id string) (int64, error) {
	res, err := r.idb(ctx).NewDelete().
		Model((*User)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete user")
	}
	return rowsAffected(res)
}

// RunInTransaction runs fn inside a bun transaction carried by ctx. Nested
// calls join the outer transaction. Any error from fn rolls back.
func (r *Users) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(bunTxKey).(bun.Tx); ok {
		return fn(ctx)
	}
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(context.WithValue(ctx, bunTxKey, tx))
	})
}

func (r *Users) idb(ctx context.Context) bun.IDB {
	if tx, ok := ctx.Value(bunTxKey).(bun.Tx); ok {
		return tx
	}
	return r.db
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read affected rows")
	}
	return n, nil
}

func mapWriteError(err error, message string) error {
	if isUniqueViolation(err) {
		return withDetail(ErrUserAlreadyExists, "", err, nil)
	}
	return goerrors.Wrap(err, goerrors.CategoryInternal, message)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "duplicate key value") {
			return true
		}
	}
	return false
}
