package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/creack/pty"
	"github.com/onkernel/microvm-init/lib/paths"
	"github.com/onkernel/microvm-init/lib/vmconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func openPTY(t *testing.T) (ptmx, tty *os.File) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	if err != nil {
		t.Skipf("pseudo-terminals unavailable: %v", err)
	}
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	return ptmx, tty
}

func TestBindDirectConsole_Sequence(t *testing.T) {
	sys := newFakeSys()
	sys.openFD = 7

	require.NoError(t, bindDirectConsole(quietLogger(), sys, "/dev/hvc0"))

	assert.Equal(t, []string{
		"setsid",
		"open /dev/hvc0",
		"dup3 7 0",
		"dup3 7 1",
		"dup3 7 2",
		"close 7",
		"cloexec from 3",
		"tiocsctty 0",
	}, sys.calls)
}

func TestBindDirectConsole_OpenedOnStdin(t *testing.T) {
	// With fd 0 closed at boot, open(2) hands back 0 itself.
	sys := newFakeSys()
	sys.openFD = 0

	require.NoError(t, bindDirectConsole(quietLogger(), sys, "/dev/hvc0"))

	assert.Equal(t, []string{
		"setsid",
		"open /dev/hvc0",
		"dup3 0 1",
		"dup3 0 2",
		"cloexec from 3",
		"tiocsctty 0",
	}, sys.calls)
}

func TestBindDirectConsole_OpenFailureIsFatal(t *testing.T) {
	sys := newFakeSys()
	sys.openErr = unix.ENOENT

	err := bindDirectConsole(quietLogger(), sys, "/dev/hvc0")
	require.Error(t, err)
	assert.ErrorIs(t, err, unix.ENOENT)

	var setupErr *SetupError
	require.ErrorAs(t, err, &setupErr)
	assert.Equal(t, "console", setupErr.Phase)
	assert.Equal(t, "open", setupErr.Op)
	assert.Equal(t, "/dev/hvc0", setupErr.Path)
	assert.NotContains(t, sys.calls, "tiocsctty 0")
}

func TestBindDirectConsole_DupFailureIsFatal(t *testing.T) {
	sys := newFakeSys()
	sys.dupErr = unix.EBADF

	err := bindDirectConsole(quietLogger(), sys, "/dev/hvc0")
	require.ErrorIs(t, err, unix.EBADF)
	assert.Contains(t, err.Error(), "/dev/hvc0 to fd 0")
}

func TestBindDirectConsole_BestEffortSteps(t *testing.T) {
	var stdout bytes.Buffer
	log := NewLogger(&stdout, &bytes.Buffer{})
	log.SetDebug(true)

	sys := newFakeSys()
	sys.setsidErr = unix.EPERM
	sys.closeErr = unix.EBADF
	sys.cloexecErr = unix.ENOSYS
	sys.cttyErr = unix.EPERM

	require.NoError(t, bindDirectConsole(log, sys, "/dev/hvc0"))
	assert.Contains(t, sys.calls, "tiocsctty 0")

	out := stdout.String()
	assert.Contains(t, out, "init: [console] setsid failed: operation not permitted")
	assert.Contains(t, out, "init: [console] TIOCSCTTY failed")
}

func TestBindConsole_DirectModePrintsNoMarker(t *testing.T) {
	var stdout bytes.Buffer
	sys := newFakeSys()
	p := paths.New("/")

	err := bindConsole(quietLogger(), sys, p, vmconfig.ConsoleDirect, consoleIO{stdout: &stdout})
	require.NoError(t, err)

	assert.Contains(t, sys.calls, "open /dev/hvc0")
	assert.Empty(t, stdout.String())
}

func TestBindConsole_HostModeDisablesEcho(t *testing.T) {
	_, tty := openPTY(t)

	termios, err := unix.IoctlGetTermios(int(tty.Fd()), unix.TCGETS)
	require.NoError(t, err)
	require.NotZero(t, termios.Lflag&unix.ECHO, "fresh pty should echo")

	var stdout bytes.Buffer
	sys := newFakeSys()
	err = bindConsole(quietLogger(), sys, paths.New("/"), vmconfig.ConsoleHostNegotiated, consoleIO{stdin: tty, stdout: &stdout})
	require.NoError(t, err)

	termios, err = unix.IoctlGetTermios(int(tty.Fd()), unix.TCGETS)
	require.NoError(t, err)
	assert.Zero(t, termios.Lflag&unix.ECHO)

	assert.Equal(t, "init: ready\n", stdout.String())
	assert.Empty(t, sys.calls, "host-negotiated mode must not touch session or controlling terminal")
}

func TestBindConsole_HostModeWithoutTerminal(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "not-a-tty"))
	require.NoError(t, err)
	defer f.Close()

	var stdout, debug bytes.Buffer
	log := NewLogger(&debug, &bytes.Buffer{})
	log.SetDebug(true)

	err = bindConsole(log, newFakeSys(), paths.New("/"), vmconfig.ConsoleHostNegotiated, consoleIO{stdin: f, stdout: &stdout})
	require.NoError(t, err)

	assert.Equal(t, "init: ready\n", stdout.String())
	assert.Contains(t, debug.String(), "leaving echo alone: not a terminal")
}

func TestBindHostConsole_MarkerWriteFailureIgnored(t *testing.T) {
	assert.NotPanics(t, func() {
		bindHostConsole(quietLogger(), consoleIO{stdout: failingWriter{}})
	})
}

// TestBindDirectConsole_RealDescriptors runs the direct-console binding in a
// child process against a pseudo-terminal slave standing in for hvc0.
func TestBindDirectConsole_RealDescriptors(t *testing.T) {
	ptmx, tty := openPTY(t)

	var stderr bytes.Buffer
	cmd := helperCommand(t, helperDirectConsole)
	cmd.Env = append(cmd.Env, consoleDeviceEnv+"="+tty.Name())
	cmd.Stderr = &stderr
	require.NoError(t, cmd.Run(), "helper failed: %s", stderr.String())

	line := readLine(t, ptmx, "result ")
	fields := strings.Fields(line)
	assert.Equal(t, []string{"result", "same=true", "session=true", "ctty=true", "leaked=0"}, fields)
}
