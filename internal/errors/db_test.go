package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	if err := MapDBError(nil); err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "wrapped deadline", err: fmt.Errorf("query users: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if GetCode(err) != tt.wantCode {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	if !IsNotFound(err) {
		t.Errorf("MapDBError(pgx.ErrNoRows) should be NotFound, got %v", GetCode(err))
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		t.Error("MapDBError should keep pgx.ErrNoRows as the cause")
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
	}{
		{
			name: "column name metadata",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "users_email_key",
				ColumnName:     "email",
			},
			wantField: "email",
		},
		{
			name: "plain Detail message",
			pgErr: &pgconn.PgError{
				Code:   pgerrcode.UniqueViolation,
				Detail: `Key (email)=(a@clinic.test) already exists.`,
			},
			wantField: "email",
		},
		{
			name: "expression index Detail message",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "users_email_lower_idx",
				Detail:         `Key (lower(email::text))=(a@clinic.test) already exists.`,
			},
			wantField: "email",
		},
		{
			name: "multi-column Detail message",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "table_field1_field2_key",
				Detail:         `Key (field1, field2)=(val1, val2) already exists.`,
			},
			wantField: "",
		},
		{
			name: "constraint name only",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "users_email_key",
			},
			wantField: "email",
		},
		{
			name: "expression constraint name only",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				ConstraintName: "users_lower_key",
			},
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Errorf("MapDBError() should be Conflict, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("MapDBError() field = %q, want %q", field, tt.wantField)
			}
		})
	}
}

func TestMapDBError_NotNullAndCheck(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
		wantMsg   string
	}{
		{
			name:      "not null with column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "role"},
			wantField: "role",
			wantMsg:   "This field is required.",
		},
		{
			name:    "not null without column",
			pgErr:   &pgconn.PgError{Code: pgerrcode.NotNullViolation},
			wantMsg: "Required field is missing. Please check your input.",
		},
		{
			name:      "check with column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.CheckViolation, ColumnName: "role"},
			wantField: "role",
			wantMsg:   "This field has an invalid value.",
		},
		{
			name:    "check without column",
			pgErr:   &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "users_role_check"},
			wantMsg: "Invalid data. Please check your input.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsValidation(err) {
				t.Fatalf("MapDBError() should be Validation, got %v", GetCode(err))
			}
			if field := GetField(err); field != tt.wantField {
				t.Errorf("field = %q, want %q", field, tt.wantField)
			}
			var appErr *AppError
			if !errors.As(err, &appErr) || appErr.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", appErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestMapDBError_UnknownPgError(t *testing.T) {
	err := MapDBError(&pgconn.PgError{Code: pgerrcode.DeadlockDetected})
	if !IsInternal(err) {
		t.Errorf("unknown pg error should be Internal, got %v", GetCode(err))
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	orig := errors.New("boom")
	if err := MapDBError(orig); !errors.Is(err, orig) || GetCode(err) != "" {
		t.Errorf("MapDBError(standard) = %v, want original error", err)
	}
}

func TestNormalizeKeyField(t *testing.T) {
	tests := map[string]string{
		"email":              "email",
		" email ":            "email",
		"lower(email::text)": "email",
		"lower(email)":       "email",
		"a, b":               "",
		"(email)::text":      "",
	}
	for in, want := range tests {
		if got := normalizeKeyField(in); got != want {
			t.Errorf("normalizeKeyField(%q) = %q, want %q", in, got, want)
		}
	}
}
