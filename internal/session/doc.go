// Package session
// Author: momentics <momentics@gmail.com>
//
// Connection registry for the event loop.
// Each registered connection is addressed by an api.Token: a slot index plus
// the generation of that slot. Removing an entry bumps the generation, so a
// token held after removal never resolves to whatever reuses the slot.
//
// The table is owned by the single dispatch goroutine and is not safe for
// concurrent use. Spreading connections over several loops means one table
// per loop, with each connection pinned to its loop.

package session
