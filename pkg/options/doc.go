// Package options resolves cascading option sets for dependent filters.
//
// A hierarchy is an ordered list of named levels; each level's options are a
// pure function of the selection one level up. Changing a selection clears
// every descendant selection, so a stale child choice can never survive a
// parent change. The resolver is generic over what the levels mean; the API
// layer decides which hierarchy to serve.
package options
