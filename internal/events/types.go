// Package events provides event types and utilities for the hive event system.
package events

// Event types for sessions
const (
	SessionCreated       = "session.created"
	SessionDeleted       = "session.deleted"
	SessionStatusChanged = "session.status_changed"
)

// Event types for conversation stream messages
const (
	SessionMessage = "session.message" // Base subject for engine stream events
)

// Event types for the approval flow
const (
	PermissionRequested = "session.permission_requested" // Tool call parked awaiting approval
	ApprovalResolved    = "session.approval_resolved"    // Pending approval approved or denied
)

// Event types for conversation results
const (
	SessionResult = "session.result" // Terminal result of a conversation run
)

// BuildSessionStatusSubject creates a status change subject for a specific session
func BuildSessionStatusSubject(sessionID string) string {
	return SessionStatusChanged + "." + sessionID
}

// BuildSessionStatusWildcardSubject creates a wildcard subscription for all status change events
func BuildSessionStatusWildcardSubject() string {
	return SessionStatusChanged + ".*"
}

// BuildSessionMessageSubject creates a message subject for a specific session
func BuildSessionMessageSubject(sessionID string) string {
	return SessionMessage + "." + sessionID
}

// BuildSessionMessageWildcardSubject creates a wildcard subscription for all message events
func BuildSessionMessageWildcardSubject() string {
	return SessionMessage + ".*"
}

// BuildPermissionRequestedSubject creates a permission request subject for a specific session
func BuildPermissionRequestedSubject(sessionID string) string {
	return PermissionRequested + "." + sessionID
}

// BuildPermissionRequestedWildcardSubject creates a wildcard subscription for all permission request events
func BuildPermissionRequestedWildcardSubject() string {
	return PermissionRequested + ".*"
}

// BuildApprovalResolvedSubject creates an approval resolution subject for a specific session
func BuildApprovalResolvedSubject(sessionID string) string {
	return ApprovalResolved + "." + sessionID
}

// BuildApprovalResolvedWildcardSubject creates a wildcard subscription for all approval resolution events
func BuildApprovalResolvedWildcardSubject() string {
	return ApprovalResolved + ".*"
}

// BuildSessionResultSubject creates a result subject for a specific session
func BuildSessionResultSubject(sessionID string) string {
	return SessionResult + "." + sessionID
}

// BuildSessionResultWildcardSubject creates a wildcard subscription for all result events
func BuildSessionResultWildcardSubject() string {
	return SessionResult + ".*"
}

// BuildSessionWildcardSubject subscribes to every session event subject.
func BuildSessionWildcardSubject() string {
	return "session.>"
}
