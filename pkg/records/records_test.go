package records

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValuesEqual(t *testing.T) {
	tests := []struct {
		name string
		a, b interface{}
		want bool
	}{
		{"identical strings", "abc", "abc", true},
		{"different strings", "abc", "abd", false},
		{"int vs float64", 42, float64(42), true},
		{"int64 vs float64", int64(7), float64(7), true},
		{"different numbers", 42, float64(43), false},
		{"bools", true, true, true},
		{"nil vs nil", nil, nil, true},
		{"nil vs value", nil, "x", false},
		{"identical slices", []interface{}{"latex", "penicillin"}, []interface{}{"latex", "penicillin"}, true},
		{"different slices", []interface{}{"latex"}, []interface{}{"penicillin"}, false},
		{"slice vs scalar", []interface{}{"latex"}, "latex", false},
		{"nested numbers normalize", []interface{}{1, "a"}, []interface{}{float64(1), "a"}, true},
		{"identical maps", map[string]interface{}{"city": "Cebu"}, map[string]interface{}{"city": "Cebu"}, true},
		{"different maps", map[string]interface{}{"city": "Cebu"}, map[string]interface{}{"city": "Manila"}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ValuesEqual(tc.a, tc.b))
		})
	}
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, IsEmpty(nil))
	assert.True(t, IsEmpty(""))
	assert.False(t, IsEmpty("x"))
	assert.False(t, IsEmpty(0))
	assert.False(t, IsEmpty(false))
}

func TestKeyValue(t *testing.T) {
	rec := Record{"id": "p-1", "email": ""}

	v, err := KeyValue(rec, "id")
	require.NoError(t, err)
	assert.Equal(t, "p-1", v)

	_, err = KeyValue(rec, "email")
	assert.Error(t, err)

	_, err = KeyValue(rec, "missing")
	assert.Error(t, err)
}

func TestRecordCloneIsIndependent(t *testing.T) {
	original := Record{"id": "p-1", "name": "Juan"}
	clone := original.Clone()
	clone["name"] = "Maria"

	assert.Equal(t, "Juan", original["name"])
}

func TestMemoryRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.Seed("Patient", []Record{
		{"id": "p-1", "name": "Juan"},
	})

	models, err := repo.Models(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Patient"}, models)

	_, found, err := repo.FindByNaturalKey(ctx, "Patient", "id", "p-1")
	require.NoError(t, err)
	assert.True(t, found)

	_, found, err = repo.FindByNaturalKey(ctx, "Patient", "id", "p-9")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, repo.Upsert(ctx, "Patient", "id", Record{"id": "p-2", "name": "Maria"}))
	require.NoError(t, repo.Upsert(ctx, "Patient", "id", Record{"id": "p-1", "name": "Pedro"}))

	all, err := repo.FetchAll(ctx, "Patient")
	require.NoError(t, err)
	require.Len(t, all, 2)

	updated, _, err := repo.FindByNaturalKey(ctx, "Patient", "id", "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Pedro", updated["name"])

	require.NoError(t, repo.Delete(ctx, "Patient", "id", "p-2"))
	all, err = repo.FetchAll(ctx, "Patient")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryRepositoryTransactionRollback(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	repo.Seed("Patient", []Record{
		{"id": "p-1", "name": "Juan"},
	})

	boom := errors.New("boom")
	err := repo.RunInTransaction(ctx, "Patient", func(tx Repository) error {
		if err := tx.Upsert(ctx, "Patient", "id", Record{"id": "p-2", "name": "Maria"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := repo.FetchAll(ctx, "Patient")
	require.NoError(t, err)
	assert.Len(t, all, 1, "failed transaction must leave the model unchanged")
}

func TestMemoryRepositoryTransactionCommit(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	err := repo.RunInTransaction(ctx, "Patient", func(tx Repository) error {
		return tx.Upsert(ctx, "Patient", "id", Record{"id": "p-1", "name": "Juan"})
	})
	require.NoError(t, err)

	all, err := repo.FetchAll(ctx, "Patient")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
