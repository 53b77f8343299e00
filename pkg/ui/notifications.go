package ui

import (
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"

	"collectordl/internal/downloader"
	"collectordl/pkg/config"
)

// NotificationSender interface for platform-specific notification implementations
type NotificationSender interface {
	Send(title, message string) error
}

// LinuxNotificationSender sends notifications on Linux using notify-send
type LinuxNotificationSender struct{}

func (l *LinuxNotificationSender) Send(title, message string) error {
	cmd := exec.Command("notify-send", title, message)
	return cmd.Run()
}

// MacOSNotificationSender sends notifications on macOS using osascript
type MacOSNotificationSender struct{}

func (m *MacOSNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`display notification %q with title %q`, message, title)
	cmd := exec.Command("osascript", "-e", script)
	return cmd.Run()
}

// WindowsNotificationSender sends notifications on Windows using PowerShell
type WindowsNotificationSender struct{}

func (w *WindowsNotificationSender) Send(title, message string) error {
	script := fmt.Sprintf(`
		[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] | Out-Null
		[Windows.Data.Xml.Dom.XmlDocument, Windows.Data.Xml.Dom.XmlDocument, ContentType = WindowsRuntime] | Out-Null
		$xml = @"
<toast>
	<visual>
		<binding template="ToastText02">
			<text id="1">%s</text>
			<text id="2">%s</text>
		</binding>
	</visual>
</toast>
"@
		$doc = [Windows.Data.Xml.Dom.XmlDocument]::new()
		$doc.LoadXml($xml)
		$toast = [Windows.UI.Notifications.ToastNotification]::new($doc)
		[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("collectordl").Show($toast)
	`, title, message)

	cmd := exec.Command("powershell", "-NoProfile", "-NonInteractive", "-Command", script)
	return cmd.Run()
}

// platformSender returns the desktop sender for the current OS, or nil
func platformSender() NotificationSender {
	switch runtime.GOOS {
	case "linux":
		return &LinuxNotificationSender{}
	case "darwin":
		return &MacOSNotificationSender{}
	case "windows":
		return &WindowsNotificationSender{}
	default:
		return nil
	}
}

// Notifier announces run milestones on the console and, when configured,
// as desktop notifications. It implements downloader.Observer.
type Notifier struct {
	mu     sync.Mutex
	cfg    config.NotificationConfig
	out    io.Writer
	sender NotificationSender
}

// NewNotifier creates a notifier. NotificationType "desktop" adds desktop
// notifications to the console line; "none" silences everything.
func NewNotifier(cfg config.NotificationConfig, out io.Writer) *Notifier {
	n := &Notifier{cfg: cfg, out: out}
	if cfg.NotificationType == "desktop" {
		n.sender = platformSender()
	}
	return n
}

// SetSender replaces the desktop sender
func (n *Notifier) SetSender(s NotificationSender) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sender = s
}

func (n *Notifier) enabled() bool {
	return n.cfg.Enabled && n.cfg.NotificationType != "none"
}

// OnEvent implements downloader.Observer
func (n *Notifier) OnEvent(e downloader.Event) {
	if !n.enabled() {
		return
	}

	switch e.Kind {
	case downloader.EventRateLimited:
		if e.Paused && n.cfg.OnRateLimit {
			n.SendNotification("Rate limited", fmt.Sprintf("Mirror refused %s, downloads paused", e.Target))
		}
	case downloader.EventEnd:
		if e.Result == nil {
			return
		}
		r := e.Result
		msg := fmt.Sprintf("%d downloaded, %d skipped, %d failed", r.Downloaded, r.Skipped, len(r.Failed))
		if len(r.Failed) > 0 {
			if n.cfg.OnError {
				n.SendError("Download finished with failures", msg)
			}
		} else if n.cfg.OnComplete {
			n.SendSuccess("Download complete", msg)
		}
	}
}

// SendNotification sends a desktop notification and prints to console
func (n *Notifier) SendNotification(title, message string) {
	n.send(Cyan(title), Yellow(message), title, message)
}

// SendError sends an error notification
func (n *Notifier) SendError(title, message string) {
	n.send(Red(title), Red(message), title, message)
}

// SendSuccess sends a success notification
func (n *Notifier) SendSuccess(title, message string) {
	n.send(Green(title), Green(message), title, message)
}

func (n *Notifier) send(coloredTitle, coloredMessage, title, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	fmt.Fprintf(n.out, "\n%s: %s\n", coloredTitle, coloredMessage)

	// Desktop notifications are best effort
	if n.sender != nil {
		_ = n.sender.Send(title, message)
	}
}
