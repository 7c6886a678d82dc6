package snapshot

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	probeTimeout     = 2 * time.Second
	maxWindowNameLen = 200
)

// runProbe executes a helper command with a bounded deadline and returns its
// trimmed stdout, or "" when the command is missing, fails or times out.
func runProbe(ctx context.Context, name string, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}

// activeWindow returns the focused window title, trying xdotool (X11) first
// and wlrctl (wlroots Wayland) second.
func activeWindow(ctx context.Context) string {
	name := runProbe(ctx, "xdotool", "getactivewindow", "getwindowname")
	if name == "" {
		name = runProbe(ctx, "wlrctl", "toplevel", "focus")
	}
	if len(name) > maxWindowNameLen {
		name = name[:maxWindowNameLen]
	}
	return name
}

// screenOn reports whether the screen is unlocked and on. Tries the GNOME
// screensaver first, then xset.
func screenOn(ctx context.Context) *bool {
	if out := runProbe(ctx, "gnome-screensaver-command", "-q"); out != "" {
		on := !strings.Contains(strings.ToLower(out), "is active")
		return &on
	}
	if out := runProbe(ctx, "xset", "q"); out != "" {
		on := !strings.Contains(out, "Monitor is Off")
		return &on
	}
	return nil
}

// onBattery reports whether the machine runs on battery, reading the kernel's
// power supply class first and falling back to upower.
func onBattery(ctx context.Context) *bool {
	entries, err := os.ReadDir("/sys/class/power_supply")
	if err == nil {
		for _, e := range entries {
			if !strings.HasPrefix(e.Name(), "BAT") {
				continue
			}
			status, err := os.ReadFile(filepath.Join("/sys/class/power_supply", e.Name(), "status"))
			if err != nil {
				continue
			}
			discharging := strings.EqualFold(strings.TrimSpace(string(status)), "discharging")
			return &discharging
		}
	}

	if out := runProbe(ctx, "upower", "-i", "/org/freedesktop/UPower/devices/battery_BAT0"); out != "" {
		lower := strings.ToLower(out)
		if strings.Contains(lower, "state:") {
			discharging := strings.Contains(lower, "discharging")
			return &discharging
		}
	}
	return nil
}
