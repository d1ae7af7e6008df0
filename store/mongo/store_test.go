package mongo_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xraph/credits/store"
	"github.com/xraph/credits/store/mongo"
	"github.com/xraph/credits/store/storetest"
)

// TestMongoStore needs a replica set, e.g.
// CREDITS_TEST_MONGO_URI=mongodb://localhost:27017/?replicaSet=rs0
func TestMongoStore(t *testing.T) {
	uri := os.Getenv("CREDITS_TEST_MONGO_URI")
	if uri == "" {
		t.Skip("CREDITS_TEST_MONGO_URI not set")
	}

	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		name := fmt.Sprintf("credits_test_%d", time.Now().UnixNano())
		s, err := mongo.Connect(ctx, uri, name)
		require.NoError(t, err)
		require.NoError(t, s.Migrate(ctx))
		t.Cleanup(func() {
			_ = s.Database().Drop(context.Background())
			_ = s.Close()
		})
		return s
	})
}
