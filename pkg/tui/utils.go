package tui

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"
)

// explorerURL links an address on the network's block explorer.
func explorerURL(base, address string) (string, bool) {
	if base == "" || address == "" {
		return "", false
	}
	return fmt.Sprintf("%s/address/%s", strings.TrimRight(base, "/"), address), true
}

// openBrowser opens the specified URL in the default browser.
func openBrowser(url string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start"}
	case "darwin":
		cmd = "open"
	default: // "linux", "freebsd", "openbsd", "netbsd"
		cmd = "xdg-open"
	}
	args = append(args, url)
	return exec.Command(cmd, args...).Start()
}
