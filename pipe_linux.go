//go:build linux

package pollpipe

import (
	"golang.org/x/sys/unix"
)

func pipe2(fds *[2]int) error {
	return unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC)
}

func dup3(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, unix.O_CLOEXEC)
}
