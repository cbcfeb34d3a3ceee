package db

import (
	"context"

	"github.com/vonshlovens/spokesync/internal/domain"
)

func scanAuthor(row rowScanner) (*domain.LocalAuthor, error) {
	a := &domain.LocalAuthor{}
	var email *string
	if err := row.Scan(&a.ID, &a.Login, &email, &a.DisplayName); err != nil {
		return nil, err
	}
	a.Email = deref(email)
	return a, nil
}

// FindAuthorByEmail looks up a local author account by email, case-insensitively
func (db *DB) FindAuthorByEmail(ctx context.Context, email string) (*domain.LocalAuthor, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT id, login, email, display_name FROM authors WHERE lower(email) = lower($1)",
		email,
	)
	a, err := scanAuthor(row)
	if err != nil {
		return nil, mapError(err, "author", email)
	}
	return a, nil
}

// FindAuthorByLogin looks up a local author account by login
func (db *DB) FindAuthorByLogin(ctx context.Context, login string) (*domain.LocalAuthor, error) {
	row := db.Pool.QueryRow(ctx,
		"SELECT id, login, email, display_name FROM authors WHERE login = $1",
		login,
	)
	a, err := scanAuthor(row)
	if err != nil {
		return nil, mapError(err, "author", login)
	}
	return a, nil
}

// EnsureAuthor returns the author with the given login, creating it when missing
func (db *DB) EnsureAuthor(ctx context.Context, login, email, displayName string) (*domain.LocalAuthor, error) {
	row := db.Pool.QueryRow(ctx, `
		INSERT INTO authors (login, email, display_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (login) DO UPDATE SET login = EXCLUDED.login
		RETURNING id, login, email, display_name
	`, login, nullString(email), displayName)
	a, err := scanAuthor(row)
	if err != nil {
		return nil, mapError(err, "author", login)
	}
	return a, nil
}
