package core

// # Error Codes Reference
//
// When a run fails, the CLI prints a user-friendly message with a code that
// can be quoted to support staff. Typed errors are matched first (errors.As),
// then the technical text is matched against known driver patterns.
//
// # Connection Errors (CONN001-CONN099)
//
//	CONN001 - Store unreachable: Unable to connect to the database
//	          Action: Check DATABASE_URL and that the server is running
//	          Match: *ConnectionError, "connection refused", "no such host"
//
//	CONN002 - Authentication: The database rejected the credentials
//	          Action: Check the user and password in DATABASE_URL
//	          Match: "password authentication failed", "access denied"
//
// # Load Errors (LOAD001-LOAD099)
//
//	LOAD001 - Relation unreadable: Source or reference table could not be read
//	          Action: Check MTR_SOURCE_TABLE, MTR_REGULATION_TABLE and MTR_UNIT_TABLE
//	          Match: *LoadError, "does not exist", "no such table"
//
//	LOAD002 - Column missing: A configured column is not in the table
//	          Action: Check the MTR_*_COLUMN and MTR_REF_* settings
//	          Match: *LoadError wrapping ErrColumnNotFound
//
// # Schema Errors (SCH001-SCH099)
//
//	SCH001 - Creation failed: A destination table could not be created
//	         Action: Check that the user may create tables in the target schema
//	         Match: *SchemaError
//
// # Write Errors (WR001-WR099)
//
//	WR001 - Write failed: A row could not be inserted
//	        Action: Rows before the failure are committed; fix the cause and rerun into empty tables
//	        Match: *WriteError
//
//	WR002 - Column mismatch: A row does not fit the destination layout
//	        Action: The destination table was created from a different source shape; drop it and rerun
//	        Match: *WriteError wrapping ErrColumnCount
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Cancelled: The run was interrupted
//	         Action: Rows before the interruption are committed
//	         Match: "context canceled"
//
//	RUN002 - Timed out: The run exceeded its deadline
//	         Match: "context deadline exceeded"
//
// # Configuration Errors (CFG001)
//
//	CFG001 - Invalid configuration
//	         Action: Fix the reported settings
//	         Match: ErrIDColumnClash, "config validation", "config load", "config file"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the logs for the technical error

import (
	"errors"
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgConnection = UserMessage{
		Message: "Unable to connect to the database",
		Action:  "Check DATABASE_URL and that the server is running",
		Code:    "CONN001",
	}
	msgAuth = UserMessage{
		Message: "The database rejected the credentials",
		Action:  "Check the user and password in DATABASE_URL",
		Code:    "CONN002",
	}
	msgLoad = UserMessage{
		Message: "Source or reference table could not be read",
		Action:  "Check MTR_SOURCE_TABLE, MTR_REGULATION_TABLE and MTR_UNIT_TABLE",
		Code:    "LOAD001",
	}
	msgColumn = UserMessage{
		Message: "A configured column is missing from the table",
		Action:  "Check the MTR_*_COLUMN and MTR_REF_* settings",
		Code:    "LOAD002",
	}
	msgSchema = UserMessage{
		Message: "A destination table could not be created",
		Action:  "Check that the user may create tables in the target schema",
		Code:    "SCH001",
	}
	msgWrite = UserMessage{
		Message: "A row could not be written",
		Action:  "Rows before the failure are committed; fix the cause and rerun into empty tables",
		Code:    "WR001",
	}
	msgColumnCount = UserMessage{
		Message: "A row does not fit the destination table",
		Action:  "The destination table was created from a different source shape; drop it and rerun",
		Code:    "WR002",
	}
	msgCancelled = UserMessage{
		Message: "The run was interrupted",
		Action:  "Rows before the interruption are committed",
		Code:    "RUN001",
	}
	msgTimeout = UserMessage{
		Message: "The run timed out",
		Action:  "Rows before the timeout are committed",
		Code:    "RUN002",
	}
	msgConfig = UserMessage{
		Message: "Invalid configuration",
		Action:  "Fix the reported settings",
		Code:    "CFG001",
	}
)

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns maps technical error text (case-insensitive) to user messages.
// The first matching pattern wins, so specific patterns come first.
var errorPatterns = []errorPattern{
	{"password authentication failed", msgAuth},
	{"access denied", msgAuth},
	{"connection refused", msgConnection},
	{"no such host", msgConnection},
	{"does not exist", msgLoad},
	{"no such table", msgLoad},
	{"context canceled", msgCancelled},
	{"context deadline exceeded", msgTimeout},
	{"config validation", msgConfig},
	{"config load", msgConfig},
	{"config file", msgConfig},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the technical error",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Typed errors from this package take precedence over text patterns.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	if msg, ok := mapTyped(err); ok {
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

func mapTyped(err error) (UserMessage, bool) {
	var (
		connErr   *ConnectionError
		loadErr   *LoadError
		schemaErr *SchemaError
		writeErr  *WriteError
	)

	switch {
	case errors.Is(err, ErrIDColumnClash):
		return msgConfig, true
	case errors.As(err, &connErr):
		if strings.Contains(strings.ToLower(err.Error()), "password authentication failed") {
			return msgAuth, true
		}
		return msgConnection, true
	case errors.As(err, &loadErr):
		if errors.Is(err, ErrColumnNotFound) {
			return msgColumn, true
		}
		return msgLoad, true
	case errors.As(err, &schemaErr):
		return msgSchema, true
	case errors.As(err, &writeErr):
		if errors.Is(err, ErrColumnCount) {
			return msgColumnCount, true
		}
		return msgWrite, true
	}

	return UserMessage{}, false
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError wraps a technical error with its user-facing message.
type UserError struct {
	Technical error       // Original technical error for logging
	User      UserMessage // User-friendly message for display
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{Technical: err, User: MapError(err)}
}
