// Package main implements the microvm init binary that runs as PID 1 in guest VMs.
//
// init turns a bare kernel boot into an environment for exactly one payload:
// - Mounts /proc, /dev/pts and /dev/shm
// - Applies the hostname from boot configuration
// - Binds the console, either the paravirtual hvc0 device or the terminal the
//   host launcher negotiated
// - Execs the payload in place, so the payload keeps PID 1
//
// Boot configuration arrives as MV_* variables on the kernel command line
// (see lib/vmconfig). Every command-line argument init receives belongs to the
// payload; init parses no flags.
package main

import (
	"os"

	"github.com/onkernel/microvm-init/lib/paths"
	"github.com/onkernel/microvm-init/lib/vmconfig"
)

func main() {
	log := NewLogger(os.Stdout, os.Stderr)
	p := paths.New("/")
	sys := unixSys{procSelfFD: p.ProcSelfFD()}
	cio := consoleIO{stdin: os.Stdin, stdout: os.Stdout}

	if err := run(log, sys, p, cio, os.Args[1:]); err != nil {
		fatal(log, err)
	}
}

// run executes the boot phases in order. On success it does not return, since
// handoff replaces the process image.
func run(log *Logger, sys sysOps, p *paths.Paths, cio consoleIO, args []string) error {
	// Phase 1: Read boot config. This is the only place boot keys are looked up.
	cfg, err := vmconfig.Read(os.Environ(), p.BootEnvFile())
	log.SetDebug(cfg.Debug)
	log.Info("boot", "init starting")
	if err != nil {
		log.Error("config", "ignoring boot env file", err)
	}

	// Phase 2: Mount virtual filesystems
	if err := mountEssentials(log, sys, p); err != nil {
		return err
	}

	// Phase 3: Apply hostname (best-effort)
	setHostname(log, sys, cfg.Hostname)

	// Phase 4: Bind console
	if err := bindConsole(log, sys, p, cfg.ConsoleMode, cio); err != nil {
		return err
	}

	// Phase 5: Replace ourselves with the payload
	return handoff(log, sys, cfg, args)
}

// fatal reports a boot failure and exits. There is no fallback payload: a guest
// that failed setup is unusable.
func fatal(log *Logger, err error) {
	log.Fatal(err)
	os.Exit(1)
}
