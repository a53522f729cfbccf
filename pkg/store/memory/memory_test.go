package memory_test

import (
	"testing"

	"github.com/dukex/actflow/pkg/store"
	"github.com/dukex/actflow/pkg/store/memory"
	"github.com/dukex/actflow/pkg/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		t.Helper()

		return memory.NewStore()
	})
}
