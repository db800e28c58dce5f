package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/config"
	"horse.fit/lingo/internal/language"
	"horse.fit/lingo/internal/logging"
	"horse.fit/lingo/internal/translation"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	lang := fs.String("lang", "", "Target language (ISO 639-1, for example: en, zh)")
	source := fs.String("source", "", "Source language (detected when omitted)")
	provider := fs.String("provider", "", "Translation provider name (for example: local)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "translate requires exactly one text argument")
		printTranslateUsage()
		return 2
	}

	targetLang := language.NormalizeCode(*lang)
	if targetLang == "" {
		fmt.Fprintln(os.Stderr, "--lang is required and must be a valid language code")
		return 2
	}
	text := strings.TrimSpace(fs.Arg(0))
	if text == "" {
		fmt.Fprintln(os.Stderr, "translate argument must not be empty")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	st, err := buildStack(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer st.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := st.manager.Translate(ctx, translation.TranslateRequest{
		Text:       text,
		SourceLang: *source,
		TargetLang: targetLang,
		Provider:   strings.TrimSpace(*provider),
	})
	if err != nil {
		if errors.Is(err, translation.ErrQueuedForRetry) {
			fmt.Fprintln(os.Stderr, "Provider unreachable; request was queued for retry")
			return 1
		}
		fmt.Fprintf(os.Stderr, "Translate failed: %v\n", err)
		return 1
	}

	fmt.Println(resp.Text)
	fmt.Fprintf(os.Stderr, "lang=%s->%s provider=%s origin=%s\n", resp.SourceLang, resp.TargetLang, resp.ProviderName, resp.Origin)
	return 0
}

func printTranslateUsage() {
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lingo translate <text> --lang <lang> [--source auto] [--provider local] [--env .env] [--timeout 2m]")
}
