package styles

import (
	"crypto/md5"
	"encoding/hex"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// UserColours is the number of colour slots users are spread over.
const UserColours = 6

// UserColour maps a user id to a slot in 1..UserColours. The digits of the
// id's md5 hex digest are read as one decimal number and reduced modulo
// UserColours.
func UserColour(userID string) int {
	sum := md5.Sum([]byte(userID))
	rem := 0
	for _, c := range hex.EncodeToString(sum[:]) {
		if c >= '0' && c <= '9' {
			rem = (rem*10 + int(c-'0')) % UserColours
		}
	}
	return rem + 1
}

// UserColorMapper caches per-user sender styles for a theme.
type UserColorMapper struct {
	palette [UserColours]string

	mu    sync.RWMutex
	cache map[string]lipgloss.Style
}

func NewUserColorMapper(theme Theme) *UserColorMapper {
	return &UserColorMapper{
		palette: theme.UserPalette,
		cache:   make(map[string]lipgloss.Style, 64),
	}
}

// ColorCode returns the palette entry selected for userID.
func (m *UserColorMapper) ColorCode(userID string) string {
	return m.palette[UserColour(userID)-1]
}

// Foreground returns a bold style in the user's colour.
func (m *UserColorMapper) Foreground(userID string) lipgloss.Style {
	m.mu.RLock()
	style, ok := m.cache[userID]
	m.mu.RUnlock()
	if ok {
		return style
	}

	style = lipgloss.NewStyle().Foreground(lipgloss.Color(m.ColorCode(userID))).Bold(true)

	m.mu.Lock()
	m.cache[userID] = style
	m.mu.Unlock()
	return style
}
