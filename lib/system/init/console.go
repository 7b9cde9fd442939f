package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/onkernel/microvm-init/lib/paths"
	"github.com/onkernel/microvm-init/lib/vmconfig"
	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// readyMarker tells the host launcher that setup finished and the payload is
// about to start. Only printed on a host-negotiated terminal.
const readyMarker = "init: ready\n"

var errNotTerminal = errors.New("not a terminal")

// consoleIO is the terminal init inherited from the host launcher.
type consoleIO struct {
	stdin  *os.File
	stdout io.Writer
}

// bindConsole attaches the standard streams according to the console mode.
func bindConsole(log *Logger, sys sysOps, p *paths.Paths, mode vmconfig.ConsoleMode, cio consoleIO) error {
	switch mode {
	case vmconfig.ConsoleDirect:
		log.Infof("console", "binding %s as controlling terminal", p.Console())
		return bindDirectConsole(log, sys, p.Console())
	default:
		log.Info("console", "using host-negotiated terminal")
		bindHostConsole(log, cio)
		return nil
	}
}

// bindDirectConsole makes device fds 0, 1 and 2 of a new session and claims it
// as the controlling terminal, so the payload shell gets job control.
func bindDirectConsole(log *Logger, sys sysOps, device string) error {
	// Fails with EPERM if already a process group leader; TIOCSCTTY below will
	// tell whether that matters.
	if err := sys.Setsid(); err != nil {
		log.Error("console", "setsid failed", err)
	}

	fd, err := sys.Open(device)
	if err != nil {
		return &SetupError{Phase: "console", Op: "open", Path: device, Err: err}
	}

	for target := 0; target <= 2; target++ {
		if fd == target {
			continue
		}
		if err := sys.Dup3(fd, target); err != nil {
			return &SetupError{Phase: "console", Op: "dup3", Path: fmt.Sprintf("%s to fd %d", device, target), Err: err}
		}
	}

	if fd > 2 {
		if err := sys.Close(fd); err != nil {
			log.Error("console", fmt.Sprintf("close fd %d failed", fd), err)
		}
	}

	if err := sys.CloseOnExecFrom(3); err != nil {
		log.Error("console", "cannot mark inherited descriptors close-on-exec", err)
	}

	if err := sys.SetControllingTTY(0); err != nil {
		log.Error("console", "TIOCSCTTY failed, payload runs without job control", err)
	}

	return nil
}

// bindHostConsole keeps the terminal the host launcher put on fd 0. Echo is
// turned off because the remote side already echoes input.
func bindHostConsole(log *Logger, cio consoleIO) {
	if err := disableEcho(cio.stdin); err != nil {
		log.Error("console", "leaving echo alone", err)
	}

	io.WriteString(cio.stdout, readyMarker)
}

func disableEcho(f *os.File) error {
	if f == nil {
		return errNotTerminal
	}

	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return errNotTerminal
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return fmt.Errorf("tcgetattr: %w", err)
	}
	termios.Lflag &^= unix.ECHO
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return fmt.Errorf("tcsetattr: %w", err)
	}
	return nil
}
