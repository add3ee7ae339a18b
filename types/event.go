package types

// ActiveEvent is the persisted active-event marker.
// Read at bridge start so a restart resumes the same event.
type ActiveEvent struct {
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// IsZero reports whether no event is active.
func (e ActiveEvent) IsZero() bool {
	return e.Slug == ""
}
