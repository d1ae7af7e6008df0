package sqlstore

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/xraph/credits"
	"github.com/xraph/credits/store"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := classify(tc.err)
			if errors.Is(got, store.ErrConflict) != tc.conflict {
				t.Fatalf("classify(%v) = %v, conflict want %v", tc.err, got, tc.conflict)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("classify(%v) lost the cause", tc.err)
			}
		})
	}
}

func TestCreatedAndNotFound(t *testing.T) {
	if err := created(gorm.ErrDuplicatedKey); !errors.Is(err, credits.ErrAlreadyExists) {
		t.Fatalf("created(duplicate) = %v", err)
	}
	if err := created(&pgconn.PgError{Code: "23505"}); !errors.Is(err, credits.ErrAlreadyExists) {
		t.Fatalf("created(23505) = %v", err)
	}
	if err := notFound(gorm.ErrRecordNotFound, credits.ErrBatchNotFound); !errors.Is(err, credits.ErrBatchNotFound) {
		t.Fatalf("notFound = %v", err)
	}
	if !credits.IsNotFound(notFound(gorm.ErrRecordNotFound, credits.ErrPlanNotFound)) {
		t.Fatal("plan not found should satisfy IsNotFound")
	}
}
