// Package styles holds the lipgloss theme tokens and the renderer that turns
// a timeline projection into pane text.
package styles

import (
	"sort"

	"github.com/charmbracelet/lipgloss"
)

// BaseColors defines global UI colors.
type BaseColors struct {
	Foreground string
	Muted      string
	Accent     string
	Error      string
}

// ChromeColors defines non-content UI colors.
type ChromeColors struct {
	Title        string
	Footer       string
	SelectedItem string
	Unseen       string
	Divider      string
}

// BorderColors defines border colors for pane state.
type BorderColors struct {
	ActivePane   string
	InactivePane string
}

// Theme is a named set of colors. UserPalette has one entry per user colour
// slot 1..6.
type Theme struct {
	Name        string
	UserPalette [UserColours]string

	Base    BaseColors
	Chrome  ChromeColors
	Borders BorderColors
}

// Themes lists available palettes by name.
var Themes = map[string]Theme{
	"default":       DefaultTheme,
	"high-contrast": HighContrastTheme,
}

// ThemeNames returns the known theme names, sorted.
func ThemeNames() []string {
	names := make([]string, 0, len(Themes))
	for name := range Themes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ThemeByName falls back to DefaultTheme for unknown names.
func ThemeByName(name string) Theme {
	if theme, ok := Themes[name]; ok {
		return theme
	}
	return DefaultTheme
}

func (t Theme) fg(color string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(color))
}
