package analytics

import "errors"

var ErrNothingPinned = errors.New("no document pinned")

// Level is a drill-down depth.
type Level int

const (
	LevelDocuments Level = iota
	LevelUsers
	LevelPurposes
)

func (l Level) String() string {
	switch l {
	case LevelUsers:
		return "USERS"
	case LevelPurposes:
		return "PURPOSES"
	default:
		return "DOCUMENTS"
	}
}

// ParseLevel accepts the names produced by Level.String.
func ParseLevel(s string) (Level, bool) {
	switch s {
	case "DOCUMENTS", "documents":
		return LevelDocuments, true
	case "USERS", "users":
		return LevelUsers, true
	case "PURPOSES", "purposes":
		return LevelPurposes, true
	}
	return LevelDocuments, false
}

// Breadcrumb is one step of the drill-down path.
type Breadcrumb struct {
	Level Level  `json:"level"`
	ID    string `json:"id,omitempty"` // pinned id that leads to the next level
}

// Navigator tracks the drill-down level and the pinned document and user.
// It only decides emphasis; it never filters data.
type Navigator struct {
	level      Level
	documentID string
	ownerID    string
	purposeID  string
}

func NewNavigator() *Navigator {
	return &Navigator{level: LevelDocuments}
}

func (n *Navigator) Level() Level          { return n.level }
func (n *Navigator) Document() string       { return n.documentID }
func (n *Navigator) User() string           { return n.ownerID }
func (n *Navigator) FocusedPurpose() string { return n.purposeID }

// SelectDocument pins the document and moves to the users level.
func (n *Navigator) SelectDocument(documentID string) {
	n.documentID = documentID
	n.ownerID = ""
	n.purposeID = ""
	n.level = LevelUsers
}

// SelectUser pins the user on the pinned document and moves to the purposes level.
func (n *Navigator) SelectUser(ownerID string) error {
	if n.documentID == "" {
		return ErrNothingPinned
	}
	n.ownerID = ownerID
	n.purposeID = ""
	n.level = LevelPurposes
	return nil
}

// FocusPurpose narrows emphasis to one purpose at the purposes level. "" clears it.
func (n *Navigator) FocusPurpose(purposeID string) {
	if n.level != LevelPurposes {
		return
	}
	n.purposeID = purposeID
}

// JumpTo returns to a shallower level and unpins everything below it.
func (n *Navigator) JumpTo(level Level) {
	if level >= n.level {
		return
	}
	n.level = level
	switch level {
	case LevelDocuments:
		n.documentID, n.ownerID, n.purposeID = "", "", ""
	case LevelUsers:
		n.ownerID, n.purposeID = "", ""
	}
}

// Breadcrumbs returns the path from the root to the current level.
func (n *Navigator) Breadcrumbs() []Breadcrumb {
	crumbs := []Breadcrumb{{Level: LevelDocuments, ID: n.documentID}}
	if n.level >= LevelUsers {
		crumbs = append(crumbs, Breadcrumb{Level: LevelUsers, ID: n.ownerID})
	}
	if n.level >= LevelPurposes {
		crumbs = append(crumbs, Breadcrumb{Level: LevelPurposes, ID: n.purposeID})
	}
	return crumbs
}

// Emphasized reports whether a record is shown in full colour at the current level.
func (n *Navigator) Emphasized(ownerID, documentID, purposeID string) bool {
	switch n.level {
	case LevelUsers:
		return documentID == n.documentID
	case LevelPurposes:
		if documentID != n.documentID || ownerID != n.ownerID {
			return false
		}
		return n.purposeID == "" || purposeID == n.purposeID
	default:
		return true
	}
}
