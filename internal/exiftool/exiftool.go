// Package exiftool locates and invokes the external ExifTool binary.
// Availability is probed once at startup and passed around as an
// explicit capability value rather than hidden global state.
package exiftool

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// probeTimeout bounds the `exiftool -ver` check so a wedged binary
// cannot stall startup.
const probeTimeout = 5 * time.Second

// candidates covers PATH lookup plus the usual Synology/Entware and
// system install locations.
var candidates = []string{"exiftool", "/opt/bin/exiftool", "/usr/bin/exiftool"}

// Capabilities describes which external metadata backend is available.
type Capabilities struct {
	// Command is the ExifTool invocation, or nil when not installed.
	Command []string
}

// Available reports whether ExifTool can be invoked.
func (c Capabilities) Available() bool { return len(c.Command) > 0 }

// Probe checks the known ExifTool locations and returns the resulting
// capability descriptor. Call once at process startup and inject the
// result into the components that need it.
func Probe() Capabilities {
	for _, candidate := range candidates {
		if probeCommand(candidate) {
			slog.Debug("exiftool found", "command", candidate)
			return Capabilities{Command: []string{candidate}}
		}
	}
	slog.Debug("exiftool not found")
	return Capabilities{}
}

func probeCommand(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, "-ver").Run() == nil
}

// Run invokes ExifTool with the given arguments and returns stdout.
func (c Capabilities) Run(ctx context.Context, args ...string) ([]byte, error) {
	if !c.Available() {
		return nil, fmt.Errorf("exiftool is not available")
	}
	full := append(append([]string{}, c.Command[1:]...), args...)
	out, err := exec.CommandContext(ctx, c.Command[0], full...).Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("exiftool: %s", exitErr.Stderr)
		}
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return out, nil
}
