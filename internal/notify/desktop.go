package notify

import (
	"os"
	"runtime"

	"github.com/gen2brain/beeep"
)

// Desktop shows notifications through the platform notification service.
// Click-to-focus is not available from a background agent.
type Desktop struct {
	Icon string
}

func NewDesktop(appName, icon string) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{Icon: icon}
}

func (d *Desktop) Notify(n Notification) error {
	return beeep.Notify(n.Title, n.Body, d.Icon)
}

// Available reports whether a notification service can be reached from
// this session.
func Available() bool {
	switch runtime.GOOS {
	case "darwin", "windows":
		return true
	case "linux", "freebsd", "netbsd", "openbsd":
		return os.Getenv("DBUS_SESSION_BUS_ADDRESS") != "" || os.Getenv("DISPLAY") != "" || os.Getenv("WAYLAND_DISPLAY") != ""
	default:
		return false
	}
}

// DesktopPermission maps the capability check and the user's setting to a
// permission answer for Gate.
func DesktopPermission(enabled bool) func() Permission {
	return func() Permission {
		if !enabled || !Available() {
			return PermissionDenied
		}
		return PermissionGranted
	}
}
