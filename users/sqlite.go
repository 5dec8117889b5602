package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Directory field names map onto users table columns; unknown fields
// are rejected rather than interpolated into SQL.
var fieldColumns = map[string]string{
	"certcn":          "cert_cn",
	"email":           "email",
	"email:confirmed": "email_confirmed",
	"username":        "username",
}

// SqliteDirectory is the user directory backed by the users table.
type SqliteDirectory struct {
	db *sqlx.DB
}

func NewSqliteDirectory(db *sqlx.DB) *SqliteDirectory {
	return &SqliteDirectory{db: db}
}

func column(field string) (string, error) {
	col, ok := fieldColumns[field]
	if !ok {
		return "", fmt.Errorf("users: unknown field %q", field)
	}
	return col, nil
}

func (d *SqliteDirectory) GetUserField(ctx context.Context, uid int64, field string) (string, error) {
	col, err := column(field)
	if err != nil {
		return "", err
	}
	var value string
	err = d.db.GetContext(ctx, &value, "SELECT COALESCE("+col+", '') FROM users WHERE id = ?", uid)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("users: get field %s: %w", field, err)
	}
	return value, nil
}

func (d *SqliteDirectory) SetUserField(ctx context.Context, uid int64, field, value string) error {
	col, err := column(field)
	if err != nil {
		return err
	}
	if _, err := d.db.ExecContext(ctx, "UPDATE users SET "+col+" = ? WHERE id = ?", value, uid); err != nil {
		return fmt.Errorf("users: set field %s: %w", field, err)
	}
	return nil
}

// GetUidByEmail returns 0 when no user carries the email.
func (d *SqliteDirectory) GetUidByEmail(ctx context.Context, email string) (int64, error) {
	if email == "" {
		return 0, nil
	}
	var uid int64
	err := d.db.GetContext(ctx, &uid, "SELECT id FROM users WHERE email = ? LIMIT 1", email)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("users: lookup by email: %w", err)
	}
	return uid, nil
}

func (d *SqliteDirectory) Create(ctx context.Context, username, email string) (int64, error) {
	res, err := d.db.ExecContext(ctx, "INSERT INTO users (username, email) VALUES (?, ?)", username, email)
	if err != nil {
		return 0, fmt.Errorf("users: create: %w", err)
	}
	uid, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("users: last insert id: %w", err)
	}
	return uid, nil
}
