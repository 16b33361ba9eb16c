package engine

import (
	"sync"
)

var (
	lockTableOnce sync.Once
	lockTable     []sync.Mutex
)

// InstallLockTable sizes the process wide mutex table to the engine's
// declared lock count and registers the acquire/release callbacks with it.
// Engines that synchronize themselves declare zero slots and no table is
// built. Safe to call more than once; only the first call has effect.
func InstallLockTable(e Engine) {
	lockTableOnce.Do(func() {
		n := e.LockCount()
		if n <= 0 {
			return
		}
		lockTable = make([]sync.Mutex, n)
		e.InstallLocking(lockSlot, unlockSlot)
	})
}

func lockSlot(slot int) {
	if slot < 0 || slot >= len(lockTable) {
		return
	}
	lockTable[slot].Lock()
}

func unlockSlot(slot int) {
	if slot < 0 || slot >= len(lockTable) {
		return
	}
	lockTable[slot].Unlock()
}
