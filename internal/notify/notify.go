// Package notify surfaces run lifecycle moments as desktop notifications.
// Only macOS (osascript) is supported; elsewhere Send is a no-op.
package notify

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/sghr/warden/internal/events"
)

// Send shows a desktop notification with sound.
func Send(title, message string) error {
	if runtime.GOOS != "darwin" {
		return nil
	}
	title = escapeAppleScript(title)
	message = escapeAppleScript(message)

	script := fmt.Sprintf(
		`display notification %q with title %q sound name "default"`,
		message, title,
	)

	cmd := exec.Command("osascript", "-e", script)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// WatchApprovals notifies the desktop whenever a run suspends on an
// approval. Returns the unsubscribe function.
func WatchApprovals(bus *events.Bus) func() {
	return bus.Subscribe(events.BusRunWaitingApproval, func(e events.BusEvent) {
		tool, _ := e.Data["tool"].(string)
		// Delivery is best effort; a failed notification is not worth a log line.
		_ = Send("warden: approval needed", fmt.Sprintf("run %s proposes %s", e.RunID, tool))
	})
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
