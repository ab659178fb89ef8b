package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

var version = "0.1.0"

// stdin is a variable to allow feeding requests in tests
var stdin io.Reader = os.Stdin

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "seal", "sign":
		return runSealCmd(args[2:], stdout, stderr)
	case "mask":
		return runMaskCmd(args[2:], stdout, stderr)
	case "shadow":
		return runShadowCmd(args[2:], stdout, stderr)
	case "check":
		return runCheckCmd(args[2:], stdout, stderr)
	case "journal":
		return runJournalCmd(args[2:], stdout, stderr)
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "triad %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sTriad Gate %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	fmt.Fprintf(w, "%sPrime for the signed, Mirror for the stale, Shadow for the rest.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  triad <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "CLIENT")
	printCommand(w, "seal", "Sign a request (--mask, --context, --path, --nonce, --json)")
	printCommand(w, "mask", "Build a mask from permissions, or --decode one")

	printSection(w, "GATE")
	printCommand(w, "check", "Classify a JSON request read from stdin (--data, --fingerprint)")
	printCommand(w, "shadow", "Render the decoy for given coordinates (--check)")
	printCommand(w, "journal", "Show journaled decisions (--limit, --json)")

	printSection(w, "UTILITIES")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Configuration is read from TRIAD_* environment variables; see pkg/config.")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-10s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// setupLogger routes structured logs to stderr at the configured level.
func setupLogger(stderr io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})))
}
