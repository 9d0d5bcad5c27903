// Command returnsd runs the return-request decision service: the
// eligibility evaluator, the step orchestrator, and the audit trail,
// exposed over a small JSON API.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // SQLite driver
)

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// startServer is a variable to allow mocking in tests
var startServer = runServer

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		// Default to server
		return startServer(stdout, stderr)
	}

	switch args[1] {
	case "serve":
		return startServer(stdout, stderr)
	case "health":
		return runHealthCmd(args[2:], stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "returnsd %s\n", version)
		return 0
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 1
	}
}

const version = "1.0.0"

func printUsage(out io.Writer) {
	fmt.Fprintln(out, "Usage: returnsd [command]")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  serve     Run the returns service (default)")
	fmt.Fprintln(out, "  health    Probe a running service's health endpoint")
	fmt.Fprintln(out, "  version   Print the version")
}

func runHealthCmd(args []string, out, errOut io.Writer) int {
	addr := "http://localhost:8080"
	if len(args) > 0 {
		addr = args[0]
	}

	resp, err := http.Get(addr + "/healthz")
	if err != nil {
		fmt.Fprintf(errOut, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(errOut, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}
