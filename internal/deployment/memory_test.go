package deployment

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetSave(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	d := New("dep-1", Request{OrganizationID: "org-1", Name: "x"}, 2.5, time.Now())
	require.NoError(t, store.Save(ctx, d))
	assert.Equal(t, int64(1), d.Version)

	got, err := store.Get(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, "x", got.Name)
	assert.Equal(t, 2.5, got.CostPerHour)
}

func TestMemoryStore_OptimisticConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := New("dep-1", Request{OrganizationID: "org-1", Name: "x"}, 1.0, time.Now())
	require.NoError(t, store.Save(ctx, d))

	// Two writers load the same version.
	first, err := store.Get(ctx, "dep-1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "dep-1")
	require.NoError(t, err)

	first.Status = StatusProvisioning
	require.NoError(t, store.Save(ctx, first))

	second.Status = StatusTerminating
	err = store.Save(ctx, second)
	assert.ErrorIs(t, err, ErrVersionConflict)

	// The losing writer reloads and retries.
	reloaded, err := store.Get(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, StatusProvisioning, reloaded.Status)
}

func TestMemoryStore_SnapshotIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	d := New("dep-1", Request{OrganizationID: "org-1", Name: "x",
		Config: map[string]string{"k": "v"}}, 1.0, time.Now())
	require.NoError(t, store.Save(ctx, d))

	got, err := store.Get(ctx, "dep-1")
	require.NoError(t, err)
	got.Config["k"] = "changed"

	again, err := store.Get(ctx, "dep-1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Config["k"])
}

func TestMemoryStore_ListByOrganization(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	base := time.Now()
	for i, id := range []string{"dep-1", "dep-2", "dep-3"} {
		org := "org-1"
		if id == "dep-3" {
			org = "org-2"
		}
		d := New(id, Request{OrganizationID: org, Name: id}, 1.0, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(ctx, d))
	}

	got, err := store.ListByOrganization(ctx, "org-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "dep-1", got[0].ID)
	assert.Equal(t, "dep-2", got[1].ID)

	empty, err := store.ListByOrganization(ctx, "org-9")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
