package audio

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// PipeWire manages PipeWire/JACK port operations through pw-link
type PipeWire struct {
	run func(ctx context.Context, args ...string) ([]byte, error)
}

// NewPipeWire creates a new PipeWire instance
func NewPipeWire() *PipeWire {
	return &PipeWire{run: runPwLink}
}

func runPwLink(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pw-link", args...).CombinedOutput()
}

// ListPorts returns all available JACK ports via PipeWire
func (pw *PipeWire) ListPorts(ctx context.Context) ([]string, error) {
	output, err := pw.run(ctx, "-io")
	if err != nil {
		return nil, fmt.Errorf("failed to list PipeWire ports: %w", err)
	}
	return parsePortList(string(output)), nil
}

func parsePortList(output string) []string {
	var ports []string
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "Input ports:") && !strings.HasPrefix(line, "Output ports:") {
			ports = append(ports, line)
		}
	}
	return ports
}

// ValidatePort checks that a port exists exactly once in the graph
func (pw *PipeWire) ValidatePort(ctx context.Context, portName string) error {
	if portName == "" || portName == "disabled" {
		return nil
	}

	ports, err := pw.ListPorts(ctx)
	if err != nil {
		return err
	}

	return validatePortInList(portName, ports)
}

func validatePortInList(portName string, ports []string) error {
	matches := 0
	for _, port := range ports {
		if port == portName {
			matches++
		}
	}

	if matches == 0 {
		return fmt.Errorf("port not found: %s", portName)
	}
	if matches > 1 {
		return fmt.Errorf("duplicate sources detected for '%s' (%d instances). Please close conflicting applications", portName, matches)
	}
	return nil
}

func (pw *PipeWire) portExists(ctx context.Context, portName string) bool {
	ports, err := pw.ListPorts(ctx)
	if err != nil {
		slog.Debug("Failed to check port existence", "port", portName, "error", err)
		return false
	}
	for _, port := range ports {
		if port == portName {
			return true
		}
	}
	return false
}

// ConnectPortsWithRetry links sourcePort to destPort, waiting for either to appear
func (pw *PipeWire) ConnectPortsWithRetry(ctx context.Context, sourcePort, destPort string) error {
	maxRetries, retryDelay := retryStrategy(sourcePort)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if pw.portExists(ctx, sourcePort) && pw.portExists(ctx, destPort) {
			err := pw.connectPorts(ctx, sourcePort, destPort)
			if err == nil {
				slog.Debug("Connected ports", "source", sourcePort, "dest", destPort, "attempt", attempt)
				return nil
			}
			slog.Debug("Connection attempt failed", "source", sourcePort, "dest", destPort, "attempt", attempt, "error", err)
		} else {
			slog.Debug("Ports not yet available", "source", sourcePort, "dest", destPort, "attempt", attempt)
		}

		if attempt < maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return fmt.Errorf("failed to connect %s to %s after %d attempts", sourcePort, destPort, maxRetries)
}

// retryStrategy gives Bluetooth headsets longer to show up than wired interfaces
func retryStrategy(portName string) (int, time.Duration) {
	if isEphemeralPort(portName) {
		return 15, time.Second
	}
	return 10, 200 * time.Millisecond
}

func isEphemeralPort(portName string) bool {
	lowerPort := strings.ToLower(portName)
	for _, marker := range []string{"bluez", "bluetooth", "airpods", "headset", "hands-free", "hfp", "hsp"} {
		if strings.Contains(lowerPort, marker) {
			return true
		}
	}
	return false
}

func (pw *PipeWire) connectPorts(ctx context.Context, sourcePort, destPort string) error {
	output, err := pw.run(ctx, sourcePort, destPort)
	if err != nil {
		return fmt.Errorf("failed to connect ports: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}
	return nil
}

// DisconnectPorts disconnects two JACK ports
func (pw *PipeWire) DisconnectPorts(ctx context.Context, sourcePort, destPort string) error {
	output, err := pw.run(ctx, "-d", sourcePort, destPort)
	if err != nil {
		return fmt.Errorf("failed to disconnect ports: %w (output: %s)", err, strings.TrimSpace(string(output)))
	}

	slog.Debug("Disconnected ports", "source", sourcePort, "dest", destPort)
	return nil
}
