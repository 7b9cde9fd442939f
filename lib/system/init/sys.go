package main

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"

	"github.com/moby/sys/mountinfo"
	"golang.org/x/sys/unix"
)

// sysOps is the set of process-wide syscalls the boot phases depend on.
// Tests substitute a recording fake; production uses unixSys.
type sysOps interface {
	Mkdir(path string, mode uint32) error
	Mounted(path string) (bool, error)
	Mount(source, target, fstype string, flags uintptr) error
	Sethostname(name string) error
	Setsid() error
	Open(path string) (int, error)
	Dup3(oldfd, newfd int) error
	Close(fd int) error
	CloseOnExecFrom(minfd int) error
	SetControllingTTY(fd int) error
	Exec(path string, argv, envv []string) error
}

type unixSys struct {
	// procSelfFD is walked when close_range(2) is unavailable.
	procSelfFD string
}

func (unixSys) Mkdir(path string, mode uint32) error {
	return unix.Mkdir(path, mode)
}

func (unixSys) Mounted(path string) (bool, error) {
	return mountinfo.Mounted(path)
}

func (unixSys) Mount(source, target, fstype string, flags uintptr) error {
	return unix.Mount(source, target, fstype, flags, "")
}

func (unixSys) Sethostname(name string) error {
	return unix.Sethostname([]byte(name))
}

func (unixSys) Setsid() error {
	_, err := unix.Setsid()
	return err
}

func (unixSys) Open(path string) (int, error) {
	return unix.Open(path, unix.O_RDWR, 0)
}

func (unixSys) Dup3(oldfd, newfd int) error {
	return unix.Dup3(oldfd, newfd, 0)
}

func (unixSys) Close(fd int) error {
	return unix.Close(fd)
}

// CloseOnExecFrom marks every descriptor >= minfd close-on-exec. The Go runtime
// keeps its own descriptors open above 2, so they cannot be closed outright
// before execve.
func (s unixSys) CloseOnExecFrom(minfd int) error {
	err := unix.CloseRange(uint(minfd), math.MaxUint, unix.CLOSE_RANGE_CLOEXEC)
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.ENOSYS) && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("close_range: %w", err)
	}

	// Kernels before 5.11 lack CLOSE_RANGE_CLOEXEC.
	entries, err := os.ReadDir(s.procSelfFD)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fd, err := strconv.Atoi(e.Name())
		if err != nil || fd < minfd {
			continue
		}
		if _, err := unix.FcntlInt(uintptr(fd), unix.F_SETFD, unix.FD_CLOEXEC); err != nil && !errors.Is(err, unix.EBADF) {
			return fmt.Errorf("set cloexec on fd %d: %w", fd, err)
		}
	}
	return nil
}

func (unixSys) SetControllingTTY(fd int) error {
	return unix.IoctlSetInt(fd, unix.TIOCSCTTY, 1)
}

func (unixSys) Exec(path string, argv, envv []string) error {
	return unix.Exec(path, argv, envv)
}
