package packaging

import (
	"fmt"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// systemctl implements SystemdController by invoking the systemctl binary.
type systemctl struct{}

// NewSystemdController returns a SystemdController that calls the real systemctl binary.
func NewSystemdController() SystemdController {
	return systemctl{}
}

func (systemctl) IsAvailable() bool {
	_, err := exec.LookPath("systemctl")
	return err == nil
}

func (c systemctl) DaemonReload() error {
	return c.run("daemon-reload")
}

func (c systemctl) Enable(service string) error {
	return c.run("enable", service)
}

func (c systemctl) Start(service string) error {
	return c.run("restart", service)
}

func (c systemctl) Disable(service string) error {
	return c.run("disable", service)
}

func (c systemctl) Stop(service string) error {
	return c.run("stop", service)
}

func (systemctl) IsActive(service string) bool {
	return exec.Command("systemctl", "is-active", "--quiet", service).Run() == nil
}

func (systemctl) run(args ...string) error {
	output, err := exec.Command("systemctl", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("packaging: systemctl %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(output)), err)
	}
	return nil
}

// euidChecker implements RootChecker using the effective UID, so setuid and
// sudo invocations are judged by the privileges they actually run with.
type euidChecker struct{}

// NewRootChecker returns a RootChecker that checks the effective process UID.
func NewRootChecker() RootChecker {
	return euidChecker{}
}

func (euidChecker) IsRoot() bool {
	return unix.Geteuid() == 0
}
