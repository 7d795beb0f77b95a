package journal

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/intake/internal/outcome"
)

var base = time.Date(2024, 6, 7, 8, 0, 0, 0, time.UTC)

func openTest(t *testing.T, opts ...Option) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func record(id, monitor string, kind outcome.Kind, at time.Time) outcome.Record {
	return outcome.Record{
		ID:      id,
		Monitor: monitor,
		Item:    id + ".csv",
		Kind:    kind,
		Path:    "/srv/in/.archive/2024-06-07/" + id + ".csv",
		Size:    42,
		At:      at,
	}
}

func TestAcceptAndRecent(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()

	errRec := record("b", "invoices", outcome.KindError, base.Add(time.Second))
	errRec.DiagnosticPath = errRec.Path + ".errorlog"
	errRec.Detail = "exit status 3"
	errRec.Retained = true
	errRec.Digest = "abc"

	require.NoError(t, j.Accept(ctx, record("a", "invoices", outcome.KindArchived, base)))
	require.NoError(t, j.Accept(ctx, errRec))
	require.NoError(t, j.Accept(ctx, record("c", "partners", outcome.KindDeleted, base.Add(2*time.Second))))

	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	inv, err := j.Recent(ctx, Query{Monitor: "invoices"})
	require.NoError(t, err)
	require.Len(t, inv, 2)
	assert.Equal(t, errRec, inv[0])

	errs, err := j.Recent(ctx, Query{Kind: outcome.KindError})
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Equal(t, "b", errs[0].ID)

	limited, err := j.Recent(ctx, Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "c", limited[0].ID)
}

func TestAcceptIgnoresDuplicateID(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	rec := record("a", "invoices", outcome.KindArchived, base)

	require.NoError(t, j.Accept(ctx, rec))
	require.NoError(t, j.Accept(ctx, rec))

	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRecentOrdersSubSecondTimes(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	require.NoError(t, j.Accept(ctx, record("whole", "m", outcome.KindArchived, base)))
	require.NoError(t, j.Accept(ctx, record("half", "m", outcome.KindArchived, base.Add(500*time.Millisecond))))

	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "half", all[0].ID)
}

func TestCounts(t *testing.T) {
	j := openTest(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, j.Accept(ctx, record(fmt.Sprintf("a%d", i), "invoices", outcome.KindArchived, base)))
	}
	require.NoError(t, j.Accept(ctx, record("e", "invoices", outcome.KindError, base)))
	require.NoError(t, j.Accept(ctx, record("p", "partners", outcome.KindError, base)))

	counts, err := j.Counts(ctx, "invoices")
	require.NoError(t, err)
	assert.Equal(t, map[outcome.Kind]int{outcome.KindArchived: 3, outcome.KindError: 1}, counts)

	counts, err = j.Counts(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, counts[outcome.KindError])
}

func TestPrune(t *testing.T) {
	now := base.Add(48 * time.Hour)
	j := openTest(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()

	require.NoError(t, j.Accept(ctx, record("old", "m", outcome.KindArchived, base)))
	require.NoError(t, j.Accept(ctx, record("new", "m", outcome.KindArchived, now.Add(-time.Hour))))

	n, err := j.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "new", all[0].ID)

	_, err = j.Prune(ctx, 0)
	assert.Error(t, err)
}

func TestPrunerJob(t *testing.T) {
	now := base.Add(48 * time.Hour)
	j := openTest(t, WithClock(func() time.Time { return now }))
	require.NoError(t, j.Accept(context.Background(), record("old", "m", outcome.KindArchived, base)))

	p := Pruner{Journal: j, KeepFor: time.Hour}
	require.NoError(t, p.Validate())
	assert.Equal(t, "journal-prune", p.Name())
	p.Run(context.Background())

	all, err := j.Recent(context.Background(), Query{})
	require.NoError(t, err)
	assert.Empty(t, all)

	assert.Error(t, Pruner{}.Validate())
	assert.Error(t, Pruner{Journal: j}.Validate())
}

func TestReopenKeepsRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, j.Accept(ctx, record("a", "m", outcome.KindArchived, base)))
	require.NoError(t, j.Close())

	j, err = Open(ctx, path)
	require.NoError(t, err)
	defer j.Close()
	all, err := j.Recent(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestOpenRejectsNetworkFilesystem(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	_, err := open(context.Background(), path, func(string) (string, error) { return "nfs", nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "network filesystem")
}
