package asan

import "golang.org/x/sys/unix"

var pageSize = uintptr(unix.Getpagesize())

func roundUpPage(size uintptr) uintptr {
	return ((size + pageSize - 1) / pageSize) * pageSize
}

func roundDownPage(value uintptr) uintptr {
	return (value / pageSize) * pageSize
}
