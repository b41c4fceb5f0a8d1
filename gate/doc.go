// Package gate is a small Gate/Policy authorization system for center-scoped memberships.
//
// A ProfileResolver maps a subject (usually a user id) to the Profile of its
// membership: the center it belongs to, its role and the permissions granted
// by that role. The Gate first checks the "resource:action" permission on the
// profile, then runs the resource policy registered for the resource type,
// which typically compares the resource's center with the profile's center.
package gate
