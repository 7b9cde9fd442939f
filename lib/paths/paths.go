// Package paths provides centralized path construction for the guest filesystem
// as seen by the init process.
package paths

import "path/filepath"

// Paths provides typed path construction rooted at the guest root directory.
// Production code uses New("/"); tests relocate the tree under a temp dir.
type Paths struct {
	root string
}

// New creates a new Paths instance for the given root directory.
func New(root string) *Paths {
	return &Paths{root: root}
}

// Root returns the guest root directory.
func (p *Paths) Root() string {
	return p.root
}

// Proc returns the procfs mount point.
func (p *Paths) Proc() string {
	return filepath.Join(p.root, "proc")
}

// ProcSelfFD returns the directory listing this process's open descriptors.
func (p *Paths) ProcSelfFD() string {
	return filepath.Join(p.Proc(), "self", "fd")
}

// Dev returns the device directory.
func (p *Paths) Dev() string {
	return filepath.Join(p.root, "dev")
}

// DevPts returns the devpts mount point.
func (p *Paths) DevPts() string {
	return filepath.Join(p.Dev(), "pts")
}

// DevShm returns the shared memory tmpfs mount point.
func (p *Paths) DevShm() string {
	return filepath.Join(p.Dev(), "shm")
}

// Console returns the paravirtual console device used in direct-console mode.
// hvc0 is the virtio-console the host launcher attaches to the VM.
func (p *Paths) Console() string {
	return filepath.Join(p.Dev(), "hvc0")
}

// BootEnvFile returns the optional dotenv file carrying boot configuration
// baked into the guest image.
func (p *Paths) BootEnvFile() string {
	return filepath.Join(p.root, "etc", "microvm", "init.env")
}
