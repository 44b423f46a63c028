// Package sf provides a generic single-flight group for deduplicating
// concurrent reads with the same key.
//
// If multiple goroutines call [Group.Do] with the same key concurrently,
// only the first call executes the function; the others block until it
// completes and receive the same result. The account repository uses it so
// that concurrent loads of one account share a single snapshot read:
//
//	g := sf.New[*account.Snapshot]()
//	snap, _, err := g.Do("AccountSnapshot-123", func() (*account.Snapshot, error) {
//	    return readLatestSnapshot(ctx, "123")
//	})
package sf
