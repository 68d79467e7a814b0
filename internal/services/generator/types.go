package generator

import (
	"fmt"
	"slices"
)

// ViewID names one of the fixed orthographic views.
type ViewID string

const (
	ViewFront ViewID = "front"
	ViewBack  ViewID = "back"
	ViewLeft  ViewID = "left"
)

// ViewIDs returns the view identifiers in display order.
func ViewIDs() []ViewID {
	return []ViewID{ViewFront, ViewBack, ViewLeft}
}

// ParseViewID validates a view identifier from the wire.
func ParseViewID(raw string) (ViewID, error) {
	id := ViewID(raw)
	if !slices.Contains(ViewIDs(), id) {
		return "", fmt.Errorf("unknown view %q", raw)
	}
	return id, nil
}

// Image is a source image submitted for view generation.
type Image struct {
	Name      string
	MediaType string
	Data      []byte
}

// ViewStatus is the result of one view status check. Views holds a
// reference (data URL or http URL) per view and is only set once Complete.
type ViewStatus struct {
	Complete bool
	Message  string
	Views    map[ViewID]string
}

// ModelResult carries the remote reference to a generated model.
type ModelResult struct {
	URL string
}

// Asset is the resolved content behind a reference.
type Asset struct {
	MediaType string
	Data      []byte
}
