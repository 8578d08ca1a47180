package lock

import (
	"runtime"
	"sync/atomic"
)

// SpinLock guards short critical sections such as register snapshots. The
// zero value is unlocked.
type SpinLock uint32

const maxBackOff = 16

func (sl *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapUint32((*uint32)(sl), 0, 1)
}

func (sl *SpinLock) Lock() {
	backoff := 1
	for !sl.TryLock() {
		for i := 0; i < backoff; i++ {
			runtime.Gosched()
		}
		if backoff < maxBackOff {
			backoff <<= 1
		}
	}
}

func (sl *SpinLock) UnLock() {
	atomic.StoreUint32((*uint32)(sl), 0)
}
