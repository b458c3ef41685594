package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

// Set at build time with -ldflags "-X main.version=... -X main.defaultGeminiKey=..."
var (
	version          = "dev"
	defaultGeminiKey = ""
)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	loadDotEnv()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], newApp(os.Stdout, geminiKey()))
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, a *app) int {
	root := a.command()
	err := root.ParseAndRun(ctx, args, ff.WithEnvVarPrefix("BILL_ANALYZER"))
	switch {
	case errors.Is(err, ff.ErrHelp):
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		return 0
	case err != nil:
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// geminiKey is the key used when none has been saved in the settings
func geminiKey() string {
	if defaultGeminiKey != "" {
		return defaultGeminiKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

// loadDotEnv loads the first .env file found. Variables already set in the
// environment win.
func loadDotEnv() {
	paths := []string{".env"}
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "bill-analyzer", ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}
