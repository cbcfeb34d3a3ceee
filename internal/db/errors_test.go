package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vonshlovens/spokesync/internal/domain"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", pgx.ErrNoRows, domain.ErrNotFound},
		{"unique violation", &pgconn.PgError{Code: "23505"}, domain.ErrAlreadyExists},
		{"wrapped unique violation", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), domain.ErrAlreadyExists},
		{"foreign key", &pgconn.PgError{Code: "23503"}, domain.ErrNotFound},
		{"check violation", &pgconn.PgError{Code: "23514"}, domain.ErrValidation},
		{"context canceled", context.Canceled, context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "document", 7)
			if !errors.Is(got, tt.want) {
				t.Errorf("mapError() = %v, want wrapping %v", got, tt.want)
			}
		})
	}

	if mapError(nil, "document", 7) != nil {
		t.Error("mapError(nil) should be nil")
	}
}

func TestMetaEncoding(t *testing.T) {
	raw, err := encodeMeta(nil)
	if err != nil || raw != nil {
		t.Fatalf("encodeMeta(nil) = %q, %v", raw, err)
	}

	m := domain.Meta{{Key: "b", Value: []byte(`1`)}, {Key: "a", Value: []byte(`"x"`)}}
	raw, err = encodeMeta(m)
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"b":1,"a":"x"}` {
		t.Errorf("encodeMeta() = %s", raw)
	}

	back, err := decodeMeta(raw)
	if err != nil {
		t.Fatal(err)
	}
	if got := back.Keys(); len(got) != 2 || got[0] != "b" || got[1] != "a" {
		t.Errorf("decodeMeta() keys = %v", got)
	}
}
