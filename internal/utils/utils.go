package utils

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
)

// SafeCommand wraps an exec.Cmd and captures its stderr so that a failing
// child process (ffmpeg) can be diagnosed after the fact.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand prepares a command with a stderr buffer attached.
// It does not start the command.
func NewSafeCommand(name string, args ...string) *SafeCommand {
	cmd := exec.Command(name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// Die is the unified exit strategy for facewatch.
// It prints a formatted error box, dumps the captured logs of s if given, and exits.
func Die(context string, err error, s *SafeCommand) {
	fmt.Fprint(os.Stderr, DieMessage(context, err, s))
	os.Exit(1)
}

// DieMessage renders the error box printed by Die.
func DieMessage(context string, err error, s *SafeCommand) string {
	var b bytes.Buffer
	fmt.Fprintf(&b, "\n---------------------------------------------------------\n")
	fmt.Fprintf(&b, "🚨 FACEWATCH ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(&b, "DETAILS: %v\n", err)
	}
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(&b, "\nFFMPEG LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(&b, "---------------------------------------------------------\n")
	return b.String()
}
