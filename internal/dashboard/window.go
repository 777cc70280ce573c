// Package dashboard serves the fixed warehouse reports: KPIs, revenue
// trend and top-N breakdowns over a lookback window.
package dashboard

import (
	"fmt"
	"strconv"
	"strings"
)

// Window is a lookback period in days. AllTime disables the filter.
type Window int

// Supported windows.
const (
	AllTime Window = 0
	Last7   Window = 7
	Last30  Window = 30
	Last90  Window = 90
	Default        = Last30
)

const maxLimit = 100

// ParseWindow accepts "7", "30", "90" (optionally suffixed with "d") and
// "all". An empty string yields the default window.
func ParseWindow(s string) (Window, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "":
		return Default, nil
	case "all", "all-time", "alltime":
		return AllTime, nil
	}

	n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
	if err != nil {
		return 0, fmt.Errorf("invalid window %q: expected 7, 30, 90 or all", s)
	}
	switch w := Window(n); w {
	case Last7, Last30, Last90:
		return w, nil
	}
	return 0, fmt.Errorf("unsupported window %d: expected 7, 30, 90 or all", n)
}

// arg is the bound parameter for the window filter. NULL means no filter.
func (w Window) arg() any {
	if w == AllTime {
		return nil
	}
	return int32(w)
}

func (w Window) String() string {
	if w == AllTime {
		return "all"
	}
	return strconv.Itoa(int(w))
}

// Label is the human-readable name of the window.
func (w Window) Label() string {
	if w == AllTime {
		return "All Time"
	}
	return fmt.Sprintf("Last %d Days", int(w))
}

func clampLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, maxLimit)
}
