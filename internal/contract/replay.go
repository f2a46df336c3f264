package contract

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/roach88/haggle/internal/ir"
	"github.com/roach88/haggle/internal/ledger"
	"github.com/roach88/haggle/internal/view"
)

// Replay rebuilds store from the full log. The store must be empty.
func Replay(ctx context.Context, log ledger.Log, store view.Store) (int, error) {
	cursor, err := ReadCursor(ctx, store)
	if err != nil {
		return 0, err
	}
	if cursor != 0 {
		return 0, fmt.Errorf("replay: view already applied through seq %d", cursor)
	}
	return NewReplica(log, store).Sync(ctx)
}

// Digest hashes every key/value in the View. Two replicas that applied the
// same log prefix produce the same digest.
func Digest(ctx context.Context, r view.Reader) (string, error) {
	var buf []byte
	for kv, err := range r.Range(ctx, "", "") {
		if err != nil {
			return "", fmt.Errorf("digest: %w", err)
		}
		buf = binary.AppendUvarint(buf, uint64(len(kv.Key)))
		buf = append(buf, kv.Key...)
		buf = binary.AppendUvarint(buf, uint64(len(kv.Value)))
		buf = append(buf, kv.Value...)
	}
	return ir.HashWithDomain(ir.DomainView, buf), nil
}
