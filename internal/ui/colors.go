package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/sqlgym/internal/live"
	"github.com/desertthunder/sqlgym/internal/models"
)

var styles = NewPalette("#7D56F4", "#04B575", "#FF0000", "#FFA500", "#626262")

// struct Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
}

func NewPalette(t, s, e, w, h string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}

// statusStyle picks the style a verdict is rendered with.
func (p *Palette) statusStyle(s models.Status) lipgloss.Style {
	switch s {
	case models.StatusAccepted:
		return p.ok
	case models.StatusPending:
		return p.help
	case models.StatusTimeLimitExceeded:
		return p.warn
	default:
		return p.err
	}
}

// indicator renders the push connection state as a colored dot and label.
func (p *Palette) indicator(s live.State) string {
	switch s {
	case live.StateConnected:
		return p.ok.Render("● live")
	case live.StateConnecting:
		return p.warn.Render("● connecting")
	default:
		return p.err.Render("● offline")
	}
}
