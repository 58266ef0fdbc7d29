package styles

// DefaultTheme uses the terminal's own ANSI colours for users, so it follows
// whatever scheme the terminal is configured with.
var DefaultTheme = Theme{
	Name:        "default",
	UserPalette: [UserColours]string{"1", "2", "3", "4", "5", "6"},
	Base: BaseColors{
		Foreground: "252",
		Muted:      "245",
		Accent:     "75",
		Error:      "203",
	},
	Chrome: ChromeColors{
		Title:        "111",
		Footer:       "244",
		SelectedItem: "75",
		Unseen:       "220",
		Divider:      "203",
	},
	Borders: BorderColors{
		ActivePane:   "75",
		InactivePane: "240",
	},
}
