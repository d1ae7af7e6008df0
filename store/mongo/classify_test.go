package mongo

import (
	"errors"
	"testing"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/credits/store"
)

func TestClassify(t *testing.T) {
	writeConflict := mongo.CommandError{Code: writeConflictCode, Name: "WriteConflict"}
	transient := mongo.CommandError{Code: 251, Labels: []string{"TransientTransactionError"}}
	other := mongo.CommandError{Code: 2, Name: "BadValue"}

	cases := []struct {
		name     string
		err      error
		conflict bool
	}{
		{"write conflict", writeConflict, true},
		{"transient label", transient, true},
		{"already a conflict", store.ErrConflict, true},
		{"other server error", other, false},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := errors.Is(classify(tc.err), store.ErrConflict); got != tc.conflict {
				t.Fatalf("classify(%v) conflict = %v, want %v", tc.err, got, tc.conflict)
			}
		})
	}
	if classify(nil) != nil {
		t.Fatal("classify(nil) should be nil")
	}
}
