// Package state holds the in-memory execution state of a deployment and the
// reducers that derive it from journal messages.
//
// State values are immutable: Apply returns a new DeploymentState and shares
// untouched execution states with the previous one. Replaying the same
// journal always yields the same state, and status only leaves STARTED when a
// message says so.
package state
