package styles

// HighContrastTheme favors legibility on low-quality terminals.
var HighContrastTheme = Theme{
	Name:        "high-contrast",
	UserPalette: [UserColours]string{"196", "46", "226", "51", "201", "231"},
	Base: BaseColors{
		Foreground: "231",
		Muted:      "250",
		Accent:     "51",
		Error:      "196",
	},
	Chrome: ChromeColors{
		Title:        "117",
		Footer:       "159",
		SelectedItem: "51",
		Unseen:       "226",
		Divider:      "196",
	},
	Borders: BorderColors{
		ActivePane:   "231",
		InactivePane: "250",
	},
}
