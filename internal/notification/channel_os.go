package notification

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// commandRunner abstracts process execution so tests can intercept the
// desktop notification commands.
type commandRunner func(cmd string, args ...string) error

func runCommand(cmd string, args ...string) error {
	return exec.Command(cmd, args...).Run()
}

// osChannel shells out to the platform's notification mechanism:
// notify-send on Linux, osascript on macOS, PowerShell on Windows.
type osChannel struct {
	platform string
	run      commandRunner
}

func newOSChannel() *osChannel {
	return &osChannel{platform: runtime.GOOS, run: runCommand}
}

// Send delivers one desktop notification.
func (c *osChannel) Send(n Notification) error {
	switch c.platform {
	case "linux":
		return c.run("notify-send", n.Title, n.Body)
	case "darwin":
		script := fmt.Sprintf(`display notification "%s" with title "%s"`,
			escapeAppleScript(n.Body), escapeAppleScript(n.Title))
		return c.run("osascript", "-e", script)
	case "windows":
		return c.run("powershell", "-Command", powershellBalloon(n))
	default:
		return fmt.Errorf("unsupported platform: %s", c.platform)
	}
}

// Close implements Channel.
func (c *osChannel) Close() error { return nil }

// escapeAppleScript escapes backslashes and double quotes so task
// titles cannot break out of the AppleScript string literal.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}

// escapePowerShell escapes backticks, double quotes, and dollar signs
// so task titles cannot inject PowerShell subexpressions.
func escapePowerShell(s string) string {
	s = strings.ReplaceAll(s, "`", "``")
	s = strings.ReplaceAll(s, `"`, "`\"")
	s = strings.ReplaceAll(s, "$", "`$")
	return s
}

func powershellBalloon(n Notification) string {
	return fmt.Sprintf(`
Add-Type -AssemblyName System.Windows.Forms
$notification = New-Object System.Windows.Forms.NotifyIcon
$notification.Icon = [System.Drawing.SystemIcons]::Information
$notification.BalloonTipTitle = "%s"
$notification.BalloonTipText = "%s"
$notification.Visible = $true
$notification.ShowBalloonTip(5000)
`, escapePowerShell(n.Title), escapePowerShell(n.Body))
}
