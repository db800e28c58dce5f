package app

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"horse.fit/lingo/internal/limits"
)

func runValidateLimits(args []string) int {
	fs := flag.NewFlagSet("validate-limits", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "validate-limits requires one file argument")
		return 2
	}

	entries, err := limits.LoadFile(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid: %v\n", err)
		return 1
	}

	fmt.Printf("Valid: %d provider limit(s)\n", len(entries))
	for _, entry := range entries {
		fmt.Printf("  %s: %d requests, %d tokens per %ds\n", entry.Provider, entry.RequestLimit, entry.TokenLimit, entry.WindowSeconds)
	}
	return 0
}
