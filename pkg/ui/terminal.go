package ui

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"
	"mpscraper/pkg/models"
)

// ASCII logo for the application
const ASCIILogo = `
    ╔═══════════════════════════════════════════════════════╗
    ║ ███╗   ███╗██████╗ ███████╗ ██████╗██████╗  █████╗     ║
    ║ ████╗ ████║██╔══██╗██╔════╝██╔════╝██╔══██╗██╔══██╗    ║
    ║ ██╔████╔██║██████╔╝███████╗██║     ██████╔╝███████║    ║
    ║ ██║╚██╔╝██║██╔═══╝ ╚════██║██║     ██╔══██╗██╔══██║    ║
    ║ ██║ ╚═╝ ██║██║     ███████║╚██████╗██║  ██║██║  ██║    ║
    ║ ╚═╝     ╚═╝╚═╝     ╚══════╝ ╚═════╝╚═╝  ╚═╝╚═╝  ╚═╝    ║
    ║          OFFICIAL ACCOUNT ARTICLE HARVESTER            ║
    ╚═══════════════════════════════════════════════════════╝
`

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

var (
	mu      sync.RWMutex
	out     io.Writer = os.Stdout
	quiet   bool
	noColor bool
)

// SetOutput redirects all terminal output, mainly for tests
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// Output returns the current terminal writer
func Output() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return out
}

// SetQuietMode suppresses everything except errors
func SetQuietMode(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuietMode reports whether quiet mode is on
func IsQuietMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return quiet
}

// SetNoColor disables ANSI colors
func SetNoColor(v bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = v
}

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.RLock()
		plain := noColor
		mu.RUnlock()
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

func printf(format string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(Output(), format, args...)
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	printf("%s", Cyan(ASCIILogo))
}

// PrintError prints an error message in red. Errors are shown even in
// quiet mode.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(Output(), Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	printf("%s\n", Green(msg))
}

// PrintInfo prints an info message in cyan
func PrintInfo(label string, value string) {
	printf("%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	printf("%s\n", Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	printf("%s\n", Magenta(msg))
}

// Truncate cuts s to at most width terminal cells. Wide (CJK) runes count
// as two cells.
func Truncate(s string, width int) string {
	return runewidth.Truncate(s, width, "…")
}

// Pad truncates or right-pads s to exactly width cells
func Pad(s string, width int) string {
	return runewidth.FillRight(Truncate(s, width), width)
}

// PrintAccounts lists account search matches
func PrintAccounts(accounts []models.Account) {
	if len(accounts) == 0 {
		PrintWarning("No matching accounts")
		return
	}
	for i, a := range accounts {
		line := fmt.Sprintf("%2d. %s %s", i+1, Pad(a.Name, 30), Dim(a.FakeID))
		if a.Alias != "" {
			line += " " + Yellow("@"+a.Alias)
		}
		printf("%s\n", line)
		if a.Signature != "" {
			printf("    %s\n", Dim(Truncate(a.Signature, 72)))
		}
	}
}

// PrintArticles lists harvested articles, newest first as returned
func PrintArticles(articles []models.Article) {
	for i, a := range articles {
		mark := Dim("·")
		if a.HasContent() {
			mark = Green("✓")
		}
		printf("%3d %s %s  %s\n",
			i+1,
			mark,
			Dim(a.PublishTime().Format("2006-01-02")),
			Truncate(a.Title, 60),
		)
	}
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}
