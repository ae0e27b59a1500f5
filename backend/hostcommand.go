package backend

import (
	"io/ioutil"
	"log"
	"os/exec"
)

// HostCommand abstracts external-tool invocation (brctl, ovs-vsctl, ip)
// behind a small interface so callers never branch on whether the backend
// is a subprocess or a direct syscall. A test double can record
// invocations without touching the host.
type HostCommand interface {
	// Run executes name with args, redirecting stdout/stderr to a null
	// sink, and returns the command's exit error (nil on success).
	Run(name string, args ...string) error
}

// ExecHostCommand runs real subprocesses via os/exec, the concrete
// HostCommand brctl/ip/ovs-vsctl are invoked through in production.
type ExecHostCommand struct{}

// Run implements HostCommand.
func (ExecHostCommand) Run(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = ioutil.Discard
	cmd.Stderr = ioutil.Discard
	log.Printf("backend: running %s %v", name, args)
	if err := cmd.Run(); err != nil {
		log.Printf("backend: %s %v: %v", name, args, err)
		return err
	}
	return nil
}

// Invocation records one call made against a RecordingHostCommand.
type Invocation struct {
	Name string
	Args []string
}

// RecordingHostCommand is a test double: it never touches the host, just
// appends every call it receives so tests can assert on what the proxy
// would have run.
type RecordingHostCommand struct {
	Calls []Invocation
	// Err, if set, is returned by every Run call (simulating a subprocess
	// failure whose exit code should propagate to the caller).
	Err error
}

// Run implements HostCommand.
func (r *RecordingHostCommand) Run(name string, args ...string) error {
	r.Calls = append(r.Calls, Invocation{Name: name, Args: append([]string(nil), args...)})
	return r.Err
}
