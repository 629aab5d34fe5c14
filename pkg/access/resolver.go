package access

import (
	"github.com/platinummonkey/permsync/pkg/reportstore"
)

// Subject is the evaluated user's synchronization and role state
type Subject struct {
	// Synced is true once the user exists in both backends and their
	// permission rows have been fetched
	Synced bool

	// Admin is true when the user belongs to the global administrator group
	Admin bool
}

// IsAdmin reports whether the group list contains the configured global
// administrator group
func IsAdmin(groups []string, adminGroup string) bool {
	if adminGroup == "" {
		return false
	}
	for _, g := range groups {
		if g == adminGroup {
			return true
		}
	}
	return false
}

// CanAccess reports whether the subject may open the report.
//
// Evaluation order:
//  1. a global administrator sees everything
//  2. an unsynced subject or nil permission set fails closed
//  3. a blanket-all-reports row with a read-capable level grants any report
//  4. a specific-reports row matching the report id grants that report
//
// reports-in-category rows are recognized grants but are not consulted here;
// they influence report listing only.
func CanAccess(subject Subject, reportID string, perms []reportstore.Permission) bool {
	if subject.Admin {
		return true
	}
	if !subject.Synced || perms == nil {
		return false
	}

	for _, p := range perms {
		if !p.AccessLevel.CanRead() {
			continue
		}
		switch p.EntityKind {
		case reportstore.KindBlanketAllReports:
			return true
		case reportstore.KindSpecificReports:
			if p.ItemID == reportID {
				return true
			}
		}
	}
	return false
}

// AccessibleReports filters candidate report ids down to the ones the
// subject may open, applying the same rules as CanAccess
func AccessibleReports(subject Subject, candidateIDs []string, perms []reportstore.Permission) map[string]struct{} {
	visible := make(map[string]struct{})
	for _, id := range candidateIDs {
		if CanAccess(subject, id, perms) {
			visible[id] = struct{}{}
		}
	}
	return visible
}
