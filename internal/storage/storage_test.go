package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Benny93/metrigraph/internal/resource"
)

func setupTestBadgerBackend(t *testing.T) (*BadgerBackend, func()) {
	t.Helper()

	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "badger")

	backend := NewBadgerBackend()
	err := backend.Initialize(dbPath, false)
	require.NoError(t, err)

	cleanup := func() {
		backend.Close()
	}

	return backend, cleanup
}

// stores returns one fresh instance of every Store implementation.
func stores(t *testing.T) map[string]Store {
	t.Helper()

	badgerStore, cleanup := setupTestBadgerBackend(t)
	t.Cleanup(cleanup)

	return map[string]Store{
		"Badger": badgerStore,
		"Memory": NewMemoryBackend(),
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.SaveResource(ctx, resource.ViewLogical, &resource.Resource{
		Key: "proj", Qualifier: resource.QualifierProject, Name: "proj",
	}))
	require.NoError(t, s.SaveResource(ctx, resource.ViewLogical, &resource.Resource{
		Key: "proj:CLA:shop.UserService", Qualifier: resource.QualifierClass,
		Name: "UserService", LongName: "shop.UserService", ParentKey: "proj",
	}))
	require.NoError(t, s.SaveResource(ctx, resource.ViewPhysical, &resource.Resource{
		Key: "proj:src/user_service.py", Qualifier: resource.QualifierFile,
		Name: "user_service.py", Path: "src/user_service.py", ParentKey: "proj",
	}))

	require.NoError(t, s.SaveMeasure(ctx, resource.Measure{ResourceKey: "proj:CLA:shop.UserService", MetricKey: "SM:WMC", Value: 12}))
	require.NoError(t, s.SaveMeasure(ctx, resource.Measure{ResourceKey: "proj:CLA:shop.UserService", MetricKey: "SM:LOC", Value: 140}))
	require.NoError(t, s.SaveMeasure(ctx, resource.Measure{ResourceKey: "proj:src/user_service.py", MetricKey: "SM:LOC", Value: 160}))

	require.NoError(t, s.AttachFinding(ctx, resource.Finding{ResourceKey: "proj:CLA:shop.UserService", Rule: "WMC", Message: "WMC is 12"}))
	require.NoError(t, s.AttachFinding(ctx, resource.Finding{ResourceKey: "proj:CLA:shop.UserService", Rule: "LOC", Message: "LOC is 140"}))
}

func TestBadgerBackend_Initialize(t *testing.T) {
	t.Parallel()

	t.Run("Success", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "badger")

		backend := NewBadgerBackend()
		err := backend.Initialize(dbPath, false)

		assert.NoError(t, err)
		assert.NotNil(t, backend.db)

		backend.Close()
	})

	t.Run("ReadOnly", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "badger")
		ctx := context.Background()

		// First create the DB
		backend1 := NewBadgerBackend()
		require.NoError(t, backend1.Initialize(dbPath, false))
		require.NoError(t, backend1.SaveResource(ctx, resource.ViewLogical, &resource.Resource{Key: "proj", Name: "proj"}))
		require.NoError(t, backend1.Close())

		// Open in read-only mode
		backend2 := NewBadgerBackend()
		require.NoError(t, backend2.Initialize(dbPath, true))
		defer backend2.Close()

		r, err := backend2.Resource(ctx, resource.ViewLogical, "proj")
		require.NoError(t, err)
		require.NotNil(t, r)

		err = backend2.SaveResource(ctx, resource.ViewLogical, &resource.Resource{Key: "other"})
		assert.ErrorIs(t, err, ErrReadOnly)
	})

	t.Run("InvalidPath", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

		backend := NewBadgerBackend()
		err := backend.Initialize(filepath.Join(blocker, "badger"), false)

		assert.Error(t, err)
	})

	t.Run("NotInitialized", func(t *testing.T) {
		backend := NewBadgerBackend()
		_, err := backend.Resource(context.Background(), resource.ViewLogical, "proj")
		assert.ErrorIs(t, err, ErrNotInitialized)
		assert.NoError(t, backend.Close())
	})
}

func TestBadgerBackend_IndexRebuiltOnOpen(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "badger")

	backend := NewBadgerBackend()
	require.NoError(t, backend.Initialize(dbPath, false))
	seed(t, backend)
	require.NoError(t, backend.Close())

	reopened := NewBadgerBackend()
	require.NoError(t, reopened.Initialize(dbPath, true))
	defer reopened.Close()

	results, err := reopened.Search(ctx, "UserService", 10)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "proj:CLA:shop.UserService", results[0].Key)
}

func TestStore_Queries(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s)

			t.Run("Resource", func(t *testing.T) {
				r, err := s.Resource(ctx, resource.ViewLogical, "proj:CLA:shop.UserService")
				require.NoError(t, err)
				require.NotNil(t, r)
				assert.Equal(t, resource.QualifierClass, r.Qualifier)
				assert.Equal(t, resource.ViewLogical, r.View)
				assert.Equal(t, "proj", r.ParentKey)

				missing, err := s.Resource(ctx, resource.ViewPhysical, "proj:CLA:shop.UserService")
				require.NoError(t, err)
				assert.Nil(t, missing)
			})

			t.Run("Resources", func(t *testing.T) {
				rs, err := s.Resources(ctx, resource.ViewLogical)
				require.NoError(t, err)
				require.Len(t, rs, 2)
				assert.Equal(t, "proj", rs[0].Key)
				assert.Equal(t, "proj:CLA:shop.UserService", rs[1].Key)
			})

			t.Run("Measures", func(t *testing.T) {
				ms, err := s.Measures(ctx, "proj:CLA:shop.UserService")
				require.NoError(t, err)
				require.Len(t, ms, 2)
				assert.Equal(t, "SM:LOC", ms[0].MetricKey)
				assert.Equal(t, 140.0, ms[0].Value)
				assert.Equal(t, "SM:WMC", ms[1].MetricKey)
			})

			t.Run("MeasuresOfPrefixSibling", func(t *testing.T) {
				ms, err := s.Measures(ctx, "proj")
				require.NoError(t, err)
				assert.Empty(t, ms)
			})

			t.Run("Findings", func(t *testing.T) {
				fs, err := s.Findings(ctx, "proj:CLA:shop.UserService")
				require.NoError(t, err)
				require.Len(t, fs, 2)
				assert.Equal(t, "LOC", fs[0].Rule)
				assert.Equal(t, "WMC", fs[1].Rule)
			})

			t.Run("Search", func(t *testing.T) {
				results, err := s.Search(ctx, "user service", 10)
				require.NoError(t, err)
				require.Len(t, results, 2)
				keys := []string{results[0].Key, results[1].Key}
				assert.ElementsMatch(t, []string{"proj:CLA:shop.UserService", "proj:src/user_service.py"}, keys)

				limited, err := s.Search(ctx, "user", 1)
				require.NoError(t, err)
				assert.Len(t, limited, 1)

				none, err := s.Search(ctx, "", 10)
				require.NoError(t, err)
				assert.Empty(t, none)
			})

			t.Run("Stats", func(t *testing.T) {
				stats, err := s.Stats(ctx)
				require.NoError(t, err)
				assert.Equal(t, 3, stats.Resources)
				assert.Equal(t, 3, stats.Measures)
				assert.Equal(t, 2, stats.Findings)
				assert.Equal(t, 2, stats.ByView[resource.ViewLogical])
				assert.Equal(t, 1, stats.ByView[resource.ViewPhysical])
			})
		})
	}
}

func TestStore_MeasureOverwrite(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.SaveMeasure(ctx, resource.Measure{ResourceKey: "proj", MetricKey: "SM:LOC", Value: 1}))
			require.NoError(t, s.SaveMeasure(ctx, resource.Measure{ResourceKey: "proj", MetricKey: "SM:LOC", Value: 2}))

			ms, err := s.Measures(ctx, "proj")
			require.NoError(t, err)
			require.Len(t, ms, 1)
			assert.Equal(t, 2.0, ms[0].Value)
		})
	}
}

func TestStore_ClearAndRuns(t *testing.T) {
	t.Parallel()

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed(t, s)

			none, err := s.LastRun(ctx)
			require.NoError(t, err)
			assert.Nil(t, none)

			info := RunInfo{
				RunID:     "run-1",
				Project:   "proj",
				Finished:  time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
				Duration:  2 * time.Second,
				Failed:    []string{"physical"},
				Resources: 3,
			}
			require.NoError(t, s.SaveRun(ctx, info))

			got, err := s.LastRun(ctx)
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, info.RunID, got.RunID)
			assert.Equal(t, info.Failed, got.Failed)
			assert.True(t, info.Finished.Equal(got.Finished))

			require.NoError(t, s.Clear(ctx))

			stats, err := s.Stats(ctx)
			require.NoError(t, err)
			assert.Zero(t, stats.Resources)
			assert.Zero(t, stats.Measures)

			results, err := s.Search(ctx, "UserService", 10)
			require.NoError(t, err)
			assert.Empty(t, results)
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"CamelCase", "UserService", []string{"service", "user", "userservice"}},
		{"Dotted", "shop.cart", []string{"cart", "shop", "shop.cart"}},
		{"Path", "src/a_b.py", []string{"py", "src", "src/a_b.py"}},
		{"Empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenize(tt.in))
		})
	}
}

func TestTokenIndex_RareTokensWeighMore(t *testing.T) {
	t.Parallel()

	x := newTokenIndex()
	for _, name := range []string{"Cart", "Util", "Order"} {
		lower := strings.ToLower(name)
		x.add(&resource.Resource{
			Key:       "proj:src/" + lower + ".py",
			Name:      name,
			Path:      "src/" + lower + ".py",
			Qualifier: resource.QualifierFile,
			View:      resource.ViewPhysical,
		})
	}

	assert.InDelta(t, 1.0, x.idf("src"), 1e-9)
	assert.Greater(t, x.idf("cart"), x.idf("src"))
	assert.Zero(t, x.idf("missing"))

	results := x.search("src cart", 10)
	require.Len(t, results, 3)
	assert.Equal(t, "proj:src/cart.py", results[0].Key)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.InDelta(t, 1.0, results[1].Score, 1e-9)
	assert.Equal(t, "proj:src/order.py", results[1].Key)
}
