package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")).Padding(0, 1)
	detailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).PaddingLeft(2)
	passStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// Run executes fn with a bounded context and renders its step details and
// final verdict for interactive use.
func Run(title string, fn func(context.Context) ([]string, error)) ([]string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	fmt.Println(titleStyle.Render(title))
	details, err := fn(ctx)
	for _, d := range details {
		fmt.Println(detailStyle.Render(d))
	}
	if err != nil {
		fmt.Println(failStyle.Render("FAIL: " + err.Error()))
		return details, err
	}
	fmt.Println(passStyle.Render("PASS"))
	return details, nil
}
