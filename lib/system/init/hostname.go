package main

// setHostname applies the configured hostname. It is best-effort: the payload
// runs fine under the kernel's default name.
func setHostname(log *Logger, sys sysOps, hostname string) {
	if hostname == "" {
		return
	}

	log.Infof("hostname", "sethostname: %s", hostname)
	if err := sys.Sethostname(hostname); err != nil {
		log.Error("hostname", "sethostname failed", err)
	}
}
