package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	keepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	removeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle     = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
)

func heading(format string, a ...any) {
	fmt.Println(headingStyle.Render(fmt.Sprintf(format, a...)))
}

func shortenPath(path string, maxLen int) string {
	if len(path) <= maxLen {
		return path
	}

	// Try to show filename and as much of the path as possible
	dir, file := filepath.Split(path)
	if len(file) >= maxLen-3 {
		return "..." + file[len(file)-(maxLen-3):]
	}

	remaining := maxLen - len(file) - 4 // 4 for ".../"
	if remaining > 0 && len(dir) > remaining {
		dir = dir[len(dir)-remaining:]
	}
	return "..." + dir + file
}

func formatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}

// progressLine rewrites a single terminal line with scan progress. Workers
// report concurrently.
type progressLine struct {
	mu   sync.Mutex
	last string
}

func (p *progressLine) update(scanned, total int, current string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erase()
	p.last = fmt.Sprintf("Progress: %d/%d  %s", scanned, total, shortenPath(current, 50))
	fmt.Print(p.last)
}

func (p *progressLine) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.erase()
}

func (p *progressLine) erase() {
	if p.last != "" {
		fmt.Print("\r" + strings.Repeat(" ", len(p.last)) + "\r")
		p.last = ""
	}
}
