package console

import (
	"strings"

	"github.com/hugh/reconsole/internal/models"
)

type Color string

const (
	ColorDefault Color = "default"
	ColorDanger  Color = "danger"
)

// StatusDisplay is how a status is shown on the scan card. When Known is
// false, Percent and Color carry no meaning and the previous values stay.
type StatusDisplay struct {
	Badge   string `json:"badge"`
	Class   string `json:"class"`
	Percent int    `json:"percent"`
	Color   Color  `json:"color"`
	Known   bool   `json:"known"`
}

var statusTable = map[models.ScanStatus]StatusDisplay{
	models.ScanStatusQueued:    {Percent: 10, Color: ColorDefault},
	models.ScanStatusRunning:   {Percent: 50, Color: ColorDefault},
	models.ScanStatusCompleted: {Percent: 100, Color: ColorDefault},
	models.ScanStatusFailed:    {Percent: 100, Color: ColorDanger},
}

// ProjectStatus maps a status to its display state.
func ProjectStatus(s models.ScanStatus) StatusDisplay {
	d, ok := statusTable[s]
	d.Badge = strings.ToUpper(string(s))
	d.Class = string(s)
	d.Known = ok
	return d
}

// Merge applies next on top of prev, keeping prev's bar for unknown statuses.
func (prev StatusDisplay) Merge(next StatusDisplay) StatusDisplay {
	if next.Known {
		return next
	}
	next.Percent = prev.Percent
	next.Color = prev.Color
	return next
}
