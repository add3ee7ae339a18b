package tui

import (
	"fmt"

	"github.com/pithecene-io/boothbridge/api"
)

// ViewStatus is the bridge status view.
const ViewStatus = "status"

// Run starts the appropriate TUI based on the view type.
// Returns an error if the view type doesn't support TUI.
//
// For the status view, data is either a *api.Status (static) or a
// Fetcher (live, refreshed every DefaultRefresh).
func Run(viewType string, data any) error {
	if !IsTUISupported(viewType) {
		return fmt.Errorf("TUI mode is not supported for %s", viewType)
	}

	switch d := data.(type) {
	case Fetcher:
		st, err := d()
		if err != nil {
			return err
		}
		return RunStatusTUI(st, d, DefaultRefresh)
	case *api.Status:
		return RunStatusTUI(d, nil, 0)
	default:
		return fmt.Errorf("invalid data type for %s: %T", viewType, data)
	}
}

// IsTUISupported returns true if the view type supports TUI mode.
func IsTUISupported(viewType string) bool {
	for _, v := range SupportedTUIViews() {
		if v == viewType {
			return true
		}
	}
	return false
}

// SupportedTUIViews returns a list of view types that support TUI.
func SupportedTUIViews() []string {
	return []string{ViewStatus}
}
