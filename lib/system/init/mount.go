package main

import (
	"errors"

	"github.com/onkernel/microvm-init/lib/paths"
	"golang.org/x/sys/unix"
)

type dirEntry struct {
	path string
	mode uint32
}

// mountEntry is one virtual filesystem mount. dirs are created in order, one
// level at a time, before the mount.
type mountEntry struct {
	dirs   []dirEntry
	source string
	target string
	fstype string
	flags  uintptr
}

// essentialMounts returns the filesystems every guest needs, in mount order.
func essentialMounts(p *paths.Paths) []mountEntry {
	return []mountEntry{
		{
			dirs:   []dirEntry{{p.Proc(), 0555}},
			source: "proc",
			target: p.Proc(),
			fstype: "proc",
		},
		{
			// devpts for PTY support (interactive shells, remote exec)
			dirs:   []dirEntry{{p.Dev(), 0755}, {p.DevPts(), 0620}},
			source: "devpts",
			target: p.DevPts(),
			fstype: "devpts",
			flags:  unix.MS_NOSUID | unix.MS_NOEXEC,
		},
		{
			dirs:   []dirEntry{{p.DevShm(), 0777}},
			source: "shm",
			target: p.DevShm(),
			fstype: "tmpfs",
			flags:  unix.MS_NOSUID | unix.MS_NOEXEC | unix.MS_NODEV,
		},
	}
}

// mountEssentials creates the mount points and mounts proc, devpts and shm.
// Existing directories and targets that are already mount points are accepted,
// so running it twice is harmless. Any other failure is fatal.
func mountEssentials(log *Logger, sys sysOps, p *paths.Paths) error {
	for _, m := range essentialMounts(p) {
		for _, d := range m.dirs {
			if err := sys.Mkdir(d.path, d.mode); err != nil && !errors.Is(err, unix.EEXIST) {
				return &SetupError{Phase: "mount", Op: "mkdir", Path: d.path, Err: err}
			}
		}

		// Without /proc and openat2 the probe can fail; mounting is still right then.
		mounted, err := sys.Mounted(m.target)
		if err != nil {
			log.Error("mount", "cannot tell whether "+m.target+" is mounted", err)
		}
		if mounted {
			log.Infof("mount", "%s already mounted, skipping", m.target)
			continue
		}

		if err := sys.Mount(m.source, m.target, m.fstype, m.flags); err != nil {
			return &SetupError{Phase: "mount", Op: "mount", Path: m.target, Err: err}
		}
		log.Infof("mount", "mounted %s on %s", m.fstype, m.target)
	}

	return nil
}
