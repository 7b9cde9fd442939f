package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/onkernel/microvm-init/lib/vmconfig"
	"golang.org/x/sys/unix"
)

// defaultSearchPath is used to find a bare payload name when PATH is unset,
// which is the normal case for a kernel-spawned init.
const defaultSearchPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// resolveInitPath turns the configured payload into the path handed to execve.
// Names with a slash are used as-is; bare names are searched like execvp does.
// An unresolvable name is returned unchanged so execve reports the error.
func resolveInitPath(name, searchPath string) string {
	if strings.Contains(name, "/") {
		return name
	}
	if searchPath == "" {
		searchPath = defaultSearchPath
	}

	for _, dir := range filepath.SplitList(searchPath) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, name)
		fi, err := os.Stat(candidate)
		if err != nil || !fi.Mode().IsRegular() {
			continue
		}
		if unix.Access(candidate, unix.X_OK) == nil {
			return candidate
		}
	}
	return name
}

// handoff scrubs the boot configuration from the environment and replaces the
// init image with the payload, keeping PID 1. It only returns on failure.
func handoff(log *Logger, sys sysOps, cfg vmconfig.Config, args []string) error {
	path := resolveInitPath(cfg.InitPath, os.Getenv("PATH"))

	argv := make([]string, 0, len(args)+1)
	argv = append(argv, path)
	argv = append(argv, args...)

	log.Infof("handoff", "execve: argc=%d argv0=%s", len(argv), path)

	if err := vmconfig.Scrub(os.Unsetenv); err != nil {
		return &SetupError{Phase: "handoff", Op: "scrub environment", Err: err}
	}

	if err := sys.Exec(path, argv, os.Environ()); err != nil {
		return &SetupError{Phase: "handoff", Op: "exec", Path: path, Err: err}
	}
	return nil
}
