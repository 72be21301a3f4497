package tests

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/flowchat/pkg/ports"
)

// LockerContractTest is a reusable test suite that verifies if an adapter complies with ports.DistributedLocker.
func LockerContractTest(t *testing.T, locker ports.DistributedLocker) {
	t.Helper()
	ctx := context.Background()

	t.Run("Lock_Unlock", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-a", 5*time.Second)
		if err != nil {
			t.Fatalf("unexpected error acquiring lock: %v", err)
		}
		if err := unlock(ctx); err != nil {
			t.Fatalf("unexpected error releasing lock: %v", err)
		}
	})

	t.Run("TryLock_Contended", func(t *testing.T) {
		unlock, ok, err := locker.TryLock(ctx, "contract-b", 5*time.Second)
		if err != nil || !ok {
			t.Fatalf("expected first TryLock to succeed, got ok=%v err=%v", ok, err)
		}

		_, ok, err = locker.TryLock(ctx, "contract-b", 5*time.Second)
		if err != nil {
			t.Fatalf("unexpected error on contended TryLock: %v", err)
		}
		if ok {
			t.Fatal("expected contended TryLock to fail")
		}

		if err := unlock(ctx); err != nil {
			t.Fatalf("unexpected error releasing lock: %v", err)
		}

		unlock, ok, err = locker.TryLock(ctx, "contract-b", 5*time.Second)
		if err != nil || !ok {
			t.Fatalf("expected TryLock after release to succeed, got ok=%v err=%v", ok, err)
		}
		_ = unlock(ctx)
	})

	t.Run("Lock_RespectsContext", func(t *testing.T) {
		unlock, err := locker.Lock(ctx, "contract-c", 5*time.Second)
		if err != nil {
			t.Fatalf("unexpected error acquiring lock: %v", err)
		}
		defer unlock(ctx)

		timeoutCtx, cancel := context.WithTimeout(ctx, 300*time.Millisecond)
		defer cancel()
		if _, err := locker.Lock(timeoutCtx, "contract-c", 5*time.Second); err == nil {
			t.Fatal("expected Lock on a held key to fail when the context expires")
		}
	})
}
