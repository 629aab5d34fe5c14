package reportstore

import (
	"fmt"
	"strings"
)

// EntityKind identifies the class of resource a permission row covers. The
// enumeration is closed; whether a scoping item id is required is a property
// of the kind, not a convention callers must remember.
type EntityKind string

// Entity kinds understood by the report store
const (
	KindBlanketAllReports     EntityKind = "blanket-all-reports"
	KindReportsInCategory     EntityKind = "reports-in-category"
	KindSpecificReports       EntityKind = "specific-reports"
	KindBlanketAllCategories  EntityKind = "blanket-all-categories"
	KindSpecificCategory      EntityKind = "specific-category"
	KindBlanketAllDataSources EntityKind = "blanket-all-data-sources"
	KindSpecificDataSource    EntityKind = "specific-data-source"
	KindBlanketAllDatasets    EntityKind = "blanket-all-datasets"
	KindSpecificDataset       EntityKind = "specific-dataset"
	KindBlanketAllSchedules   EntityKind = "blanket-all-schedules"
	KindSpecificSchedule      EntityKind = "specific-schedule"
)

var entityKinds = map[EntityKind]bool{
	KindBlanketAllReports:     true,
	KindReportsInCategory:     true,
	KindSpecificReports:       true,
	KindBlanketAllCategories:  true,
	KindSpecificCategory:      true,
	KindBlanketAllDataSources: true,
	KindSpecificDataSource:    true,
	KindBlanketAllDatasets:    true,
	KindSpecificDataset:       true,
	KindBlanketAllSchedules:   true,
	KindSpecificSchedule:      true,
}

// Valid reports whether the kind is one of the closed enumeration
func (k EntityKind) Valid() bool {
	return entityKinds[k]
}

// RequiresItem reports whether a permission of this kind must carry a
// non-empty item id. All specific-* kinds and reports-in-category scope to
// an item; blanket-* kinds never do.
func (k EntityKind) RequiresItem() bool {
	switch k {
	case KindReportsInCategory, KindSpecificReports, KindSpecificCategory,
		KindSpecificDataSource, KindSpecificDataset, KindSpecificSchedule:
		return true
	}
	return false
}

// ParseEntityKind converts a wire string into an EntityKind
func ParseEntityKind(s string) (EntityKind, error) {
	k := EntityKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.Valid() {
		return "", fmt.Errorf("unknown entity kind %q", s)
	}
	return k, nil
}

// AccessLevel is the capability attached to a permission row. The levels are
// a discrete set, not a numeric scale.
type AccessLevel string

// Access levels understood by the report store
const (
	AccessCreate          AccessLevel = "Create"
	AccessRead            AccessLevel = "Read"
	AccessReadWrite       AccessLevel = "ReadWrite"
	AccessReadWriteDelete AccessLevel = "ReadWriteDelete"
	AccessDownload        AccessLevel = "Download"
)

var accessLevels = map[AccessLevel]bool{
	AccessCreate:          true,
	AccessRead:            true,
	AccessReadWrite:       true,
	AccessReadWriteDelete: true,
	AccessDownload:        true,
}

// Valid reports whether the level is one of the discrete set
func (l AccessLevel) Valid() bool {
	return accessLevels[l]
}

// CanRead reports whether the level lets its holder view a resource.
// Create grants authoring rights only.
func (l AccessLevel) CanRead() bool {
	switch l {
	case AccessRead, AccessReadWrite, AccessReadWriteDelete, AccessDownload:
		return true
	}
	return false
}

// ParseAccessLevel converts a wire string into an AccessLevel
func ParseAccessLevel(s string) (AccessLevel, error) {
	trimmed := strings.TrimSpace(s)
	for level := range accessLevels {
		if strings.EqualFold(trimmed, string(level)) {
			return level, nil
		}
	}
	return "", fmt.Errorf("unknown access level %q", s)
}

// User is an identity inside the report store. The email is the natural key
// shared with the identity store; the numeric id is never shared.
type User struct {
	ID        int64    `json:"id"`
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Active    bool     `json:"active"`
	Groups    []string `json:"groups,omitempty"`
}

// DisplayName returns the user's human-readable name, falling back to the
// email when no name is set
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

// Group is a named collection of report store users
type Group struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Permission is a grant record owned by exactly one user
type Permission struct {
	ID          string      `json:"id"`
	EntityKind  EntityKind  `json:"entityKind"`
	AccessLevel AccessLevel `json:"accessLevel"`
	ItemID      string      `json:"itemId,omitempty"`
	ItemName    string      `json:"itemName,omitempty"`
	UserID      int64       `json:"userId"`
}

// Validate checks the kind/level values and the item-id invariant: kinds that
// scope to an item must carry one
func (p Permission) Validate() error {
	if !p.EntityKind.Valid() {
		return fmt.Errorf("unknown entity kind %q", p.EntityKind)
	}
	if !p.AccessLevel.Valid() {
		return fmt.Errorf("unknown access level %q", p.AccessLevel)
	}
	if p.EntityKind.RequiresItem() && p.ItemID == "" {
		return fmt.Errorf("entity kind %q requires an item id", p.EntityKind)
	}
	return nil
}

// NotFoundError indicates the report store has no record for the given key
type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found in report store", e.Resource, e.Key)
}
