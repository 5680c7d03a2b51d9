//go:build !linux

package cardqueue

// residentSlotPages reports (0, 0) outside Linux: mincore's vector
// format is Linux-specific and other platforms' equivalents have not
// been validated here. Pool behavior is identical either way; only the
// residency diagnostic goes dark.
func residentSlotPages(*Buffer) (resident, probed int) { return 0, 0 }
