package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "serve":
		return runServe(args[1:])
	case "translate":
		return runTranslate(args[1:])
	case "check":
		return runCheck(args[1:])
	case "validate-limits":
		return runValidateLimits(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "lingo CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lingo <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve            Start the Echo API server")
	fmt.Fprintln(os.Stderr, "  translate        Translate one text from the command line")
	fmt.Fprintln(os.Stderr, "  check            Probe provider connectivity and print the result")
	fmt.Fprintln(os.Stderr, "  validate-limits  Validate a provider limits JSON file")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"lingo <command> -h\" for command-specific flags.")
}
