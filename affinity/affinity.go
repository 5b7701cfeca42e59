// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations are located
// in separate files guarded by build tags.

package affinity

import "runtime"

// SetAffinity pins the current OS thread to a given logical CPU.
// On unsupported platforms returns an error.
func SetAffinity(cpuID int) error {
	return setAffinityPlatform(cpuID)
}

// PinEventLoop locks the calling goroutine to its OS thread and pins that
// thread to cpuID. A negative cpuID only locks the thread. The returned
// function undoes both and must be called on the same goroutine.
func PinEventLoop(cpuID int) (release func(), err error) {
	runtime.LockOSThread()
	if cpuID < 0 {
		return runtime.UnlockOSThread, nil
	}
	restore, err := saveAffinityPlatform()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, err
	}
	if err := SetAffinity(cpuID); err != nil {
		_ = restore()
		runtime.UnlockOSThread()
		return nil, err
	}
	return func() {
		_ = restore()
		runtime.UnlockOSThread()
	}, nil
}
