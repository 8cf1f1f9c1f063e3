package lockutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sl4m3/agentmem/internal/types"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "lock"))
}

func TestAcquireExclusiveReentersSameProcess(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	release1, err := l.AcquireExclusive(ctx)
	require.NoError(t, err)

	release2, err := l.AcquireExclusive(ctx)
	require.NoError(t, err)

	release2()
	release1()
}

func TestAcquireSharedReentersSameProcess(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	release1, err := l.AcquireShared(ctx)
	require.NoError(t, err)
	release2, err := l.AcquireShared(ctx)
	require.NoError(t, err)

	release2()
	release1()
}

func TestAcquireSharedReentersUnderExclusiveHolder(t *testing.T) {
	l := newTestLock(t)
	ctx := context.Background()

	releaseExcl, err := l.AcquireExclusive(ctx)
	require.NoError(t, err)

	releaseShared, err := l.AcquireShared(ctx)
	require.NoError(t, err)

	releaseShared()
	releaseExcl()
}

func TestAcquireExclusiveTimesOutWhenHeldByAnotherLockInstance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	holder := New(path)
	contender := New(path).WithTimeout(50 * time.Millisecond)
	ctx := context.Background()

	release, err := holder.AcquireExclusive(ctx)
	require.NoError(t, err)
	defer release()

	_, err = contender.AcquireExclusive(ctx)
	require.Error(t, err)
	var timeoutErr *types.LockTimeout
	require.ErrorAs(t, err, &timeoutErr)
}

func TestAcquireExclusiveRespectsContextCancellation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lock")
	holder := New(path)
	contender := New(path).WithTimeout(time.Minute)

	release, err := holder.AcquireExclusive(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = contender.AcquireExclusive(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestReleaseIsIdempotentPastZeroDepth(t *testing.T) {
	l := newTestLock(t)
	release, err := l.AcquireExclusive(context.Background())
	require.NoError(t, err)
	release()
	release() // must not panic or go negative
}
