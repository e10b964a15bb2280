package shared

import (
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

var (
	getRuntime   = func() string { return runtime.GOOS }
	startCommand = func(name string, args ...string) error { return exec.Command(name, args...).Start() }
)

// launchers maps a platform to the command that hands a URL to the desktop.
var launchers = map[string][]string{
	"darwin":  {"open"},
	"linux":   {"xdg-open"},
	"freebsd": {"xdg-open"},
	"windows": {"rundll32", "url.dll,FileProtocolHandler"},
}

// OpenBrowser hands the authorization URL to a browser without waiting for it.
//
// $BROWSER wins over the platform default, which keeps sign-in usable over SSH.
func OpenBrowser(target string) error {
	u, err := url.Parse(target)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: not a web url: %q", ErrInvalidArgument, target)
	}

	argv := strings.Fields(os.Getenv("BROWSER"))
	if len(argv) == 0 {
		argv = launchers[getRuntime()]
	}
	if len(argv) == 0 {
		return fmt.Errorf("%w: no browser launcher for %s", ErrServiceUnavailable, getRuntime())
	}

	args := append(argv[1:len(argv):len(argv)], target)
	if err := startCommand(argv[0], args...); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrServiceUnavailable, argv[0], err)
	}
	return nil
}
