package tui

import (
	"strings"
	"time"
)

// activity lights up on every event and fades over ten seconds.
type activity struct {
	dots      int
	lastEvent time.Time
}

func (a *activity) onEvent(now time.Time) {
	a.dots = 5
	a.lastEvent = now
}

func (a *activity) decay(now time.Time) {
	if a.dots == 0 {
		return
	}
	elapsed := now.Sub(a.lastEvent)
	a.dots = 5 - int(elapsed/(2*time.Second))
	if a.dots < 0 {
		a.dots = 0
	}
}

func (a activity) render(theme Theme) string {
	var b strings.Builder
	for i := range 5 {
		if i < a.dots {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}
