package ledger

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/haggle/internal/ir"
)

func logs(t *testing.T) map[string]Log {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "log.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return map[string]Log{
		"memory": NewMemory(),
		"sqlite": s,
	}
}

func record(t *testing.T, op, nonce string) Record {
	t.Helper()
	rec, err := NewRecord(ir.Object{"op": ir.String(op), "nonce": ir.String(nonce)})
	require.NoError(t, err)
	return rec
}

func TestLog_AppendAssignsLinearSeq(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, nonce := range []string{"a", "b", "c"} {
				r, err := l.Append(ctx, record(t, "listing_post", nonce))
				require.NoError(t, err)
				assert.Equal(t, int64(i+1), r.Seq)
				assert.False(t, r.Duplicate)
			}

			all, err := l.Read(ctx, 0, 0)
			require.NoError(t, err)
			require.Len(t, all, 3)
			for i, c := range all {
				assert.Equal(t, int64(i+1), c.Seq)
			}
			assert.Equal(t, "b", all[1].Payload.Str("nonce"))
		})
	}
}

func TestLog_AppendIsIdempotent(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := record(t, "offer_send", "n-1")

			first, err := l.Append(ctx, rec)
			require.NoError(t, err)
			again, err := l.Append(ctx, rec)
			require.NoError(t, err)

			assert.Equal(t, first.Seq, again.Seq)
			assert.True(t, again.Duplicate)

			all, err := l.Read(ctx, 0, 0)
			require.NoError(t, err)
			assert.Len(t, all, 1)
		})
	}
}

func TestLog_ReadAfterAndLimit(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, nonce := range []string{"a", "b", "c", "d"} {
				_, err := l.Append(ctx, record(t, "rule_set", nonce))
				require.NoError(t, err)
			}

			got, err := l.Read(ctx, 1, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, int64(2), got[0].Seq)
			assert.Equal(t, int64(3), got[1].Seq)

			got, err = l.Read(ctx, 4, 10)
			require.NoError(t, err)
			assert.Empty(t, got)
		})
	}
}

func TestLog_SubscribeSignalsAppends(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			ch, cancel := l.Subscribe()
			defer cancel()

			_, err := l.Append(context.Background(), record(t, "listing_post", "x"))
			require.NoError(t, err)

			select {
			case <-ch:
			case <-time.After(time.Second):
				t.Fatal("expected append signal")
			}
		})
	}
}

func TestLog_RejectsInvalidRecords(t *testing.T) {
	for name, l := range logs(t) {
		t.Run(name, func(t *testing.T) {
			_, err := l.Append(context.Background(), Record{Payload: ir.Object{}})
			assert.Error(t, err)
			_, err = l.Append(context.Background(), Record{ID: "x"})
			assert.Error(t, err)
		})
	}
}

func TestSQLite_SharedFileSharesOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.db")
	a, err := OpenSQLite(path)
	require.NoError(t, err)
	defer a.Close()
	b, err := OpenSQLite(path)
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	_, err = a.Append(ctx, record(t, "listing_post", "from-a"))
	require.NoError(t, err)
	_, err = b.Append(ctx, record(t, "listing_post", "from-b"))
	require.NoError(t, err)

	fromA, err := a.Read(ctx, 0, 0)
	require.NoError(t, err)
	fromB, err := b.Read(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, fromA, fromB)

	head, err := b.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), head)
}
