package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"elemwrite/pkg/config"
	"elemwrite/pkg/driver"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

const (
	historyFile = ".elemwrite_history"
	prompt      = "> "
)

func main() {
	exprFlag := flag.String("e", "", "Run the given statements and exit")
	configFlag := flag.String("config", "", "Load options from a TOML file")
	cacheStatsFlag := flag.Bool("cache-stats", false, "Show inline cache statistics after execution")

	flag.Parse()

	opts, err := loadOptions(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "elemwrite: %v\n", err)
		os.Exit(64) // Exit code 64: command line usage error
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opts.SlogLevel()}))

	session := driver.NewSession(opts, logger)

	switch {
	case *exprFlag != "":
		// Statements on the command line may be separated by ';'.
		source := strings.ReplaceAll(*exprFlag, ";", "\n")
		os.Exit(runSource(session, source, *cacheStatsFlag))
	case flag.NArg() > 1:
		fmt.Fprintf(os.Stderr, "Usage: elemwrite [-config file] [-cache-stats] [script] or elemwrite -e \"statements\"\n")
		os.Exit(64)
	case flag.NArg() == 1:
		os.Exit(runFile(session, flag.Arg(0), *cacheStatsFlag))
	case !term.IsTerminal(int(os.Stdin.Fd())):
		source, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			os.Exit(70)
		}
		os.Exit(runSource(session, string(source), *cacheStatsFlag))
	default:
		runRepl(session, *cacheStatsFlag)
	}
}

func loadOptions(path string) (config.Options, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func runSource(session *driver.Session, source string, showCacheStats bool) int {
	ok := session.DisplayResult(source, session.RunString(source))
	if showCacheStats {
		session.PrintStats()
	}
	if !ok {
		return 70 // Exit code 70: internal software error
	}
	return 0
}

// runFile executes a script file in session.
func runFile(session *driver.Session, filename string, showCacheStats bool) int {
	source, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read file '%s': %s\n", filename, err.Error())
		return 70
	}
	session.SetFileName(filename)
	return runSource(session, string(source), showCacheStats)
}

// runRepl starts the Read-Eval-Print Loop. Every input line becomes its
// own write site in the persistent session.
func runRepl(session *driver.Session, showCacheStats bool) {
	fmt.Println("elemwrite (Ctrl+D to exit)")
	if showCacheStats {
		fmt.Println("Cache statistics enabled")
	}

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	for {
		line, err := ln.Prompt(prompt)
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				continue
			}
			if err != io.EOF {
				fmt.Fprintf(os.Stderr, "Error reading input: %s\n", err)
			}
			fmt.Println("\nGoodbye!")
			break
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		ln.AppendHistory(line)

		_ = session.DisplayResult(line, session.RunString(line))
		if showCacheStats {
			session.PrintStats()
		}
	}

	if f, err := os.Create(histPath); err == nil {
		_, _ = ln.WriteHistory(f)
		_ = f.Close()
	}
}
