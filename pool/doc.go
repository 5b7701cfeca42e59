// Package pool
// Author: momentics <momentics@gmail.com>
//
// Buffer recycling for the write path. Encoded frames are assembled in pooled
// slices and handed back once the socket has accepted every byte.
package pool
