package asan

import (
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"
)

func archName() string {
	return runtime.GOARCH
}

// bytesAt views n bytes starting at the raw address addr as a byte slice.
// Every caller in this package holds the allocator exclusively per spec
// §5 ("no locks are required on the allocator's internal tables"), so
// there is no concurrent-mutation hazard in practice even though the
// compiler cannot see it.
func bytesAt(addr uintptr, n uintptr) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), int(n))
}

func readByte(addr uintptr) byte {
	return *(*byte)(unsafe.Pointer(addr))
}

// mmapFixed maps length bytes at the exact address addr. golang.org/x/sys/unix's
// Mmap helper always asks the kernel to pick the address (it hardcodes
// addr=0 in its raw mmap(2) call), so a fixed-address reservation has to
// go through the syscall directly — this is the same reason the original
// depends on mmap-rs's with_address rather than a higher-level wrapper.
func mmapFixed(addr uintptr, length uintptr, prot int, flags int) error {
	_, _, errno := unix.Syscall6(unix.SYS_MMAP, addr, length,
		uintptr(prot), uintptr(flags|unix.MAP_FIXED), ^uintptr(0), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
