// # Error Codes Reference
//
// This file maps engine errors to operator-facing messages with codes for
// support reference. Codes are grouped by category:
//
// # Annotation Errors (ANN001-ANN099)
//
//	ANN001 - Ambiguous match: several equally valid partner columns
//	         Action: Rename or drop one of the competing columns and rerun
//	         Sentinel: ErrAmbiguousMatch
//
//	ANN002 - Oracle contract: the oracle replied outside the allowed answers
//	         Action: Rerun, or switch to a model that follows instructions
//	         Sentinel: ErrOracleContract, timefmt.ErrInvalidFormat
//
//	ANN003 - Invalid selection: no primary column could be chosen
//	         Action: Mark the primary column by hand if one is needed
//	         Sentinel: ErrInvalidSelection
//
//	ANN004 - Oracle unavailable: the oracle call failed or timed out
//	         Action: Check the oracle endpoint and key, then rerun
//	         Sentinel: ErrOracleUnavailable, oracle.ErrEmptyReply
//
//	ANN005 - Operator input closed: no more answers could be read
//	         Action: Run interactively or supply answers for every question
//	         Patterns: "operator input"
//
// # Table Errors (TBL001-TBL099)
//
//	TBL001 - Unsupported format: the table source is not recognised
//	         Action: Use CSV, TSV, Excel, Arrow, SQLite or a postgres:// URL
//	         Sentinel: table.ErrUnsupportedFormat
//
//	TBL002 - No columns: the table has no header row
//	         Action: Check that the file is not empty
//	         Sentinel: table.ErrNoColumns
//
//	TBL003 - Row width: a row has more fields than the header
//	         Action: Check quoting and delimiters in the file
//	         Sentinel: table.ErrRowWidth
//
//	TBL004 - Table not found: the named table or relation does not exist
//	         Action: Verify the table name after '#'
//	         Patterns: "no such table", "does not exist"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - System busy: too many annotation runs in progress
//	         Action: Please wait a moment and try again
//	         Sentinel: ErrTooManyRuns
//
//	RUN002 - Run not found: the run ID is unknown or has expired
//	         Action: Start a new run
//	         Sentinel: ErrRunNotFound
//
//	RUN003 - Request cancelled
//	         Patterns: "context canceled"
//
//	RUN004 - Request timeout
//	         Patterns: "context deadline exceeded"
//
// # Default Error (ERR000)
//
//	ERR000 - Unknown error: An unexpected error occurred
//	         Action: Check the logs for the run
//
// Sentinels are matched with errors.Is before any text pattern. Patterns
// are matched case-insensitively using strings.Contains; the first match
// wins.
package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/JonMunkholm/colannotate/internal/oracle"
	"github.com/JonMunkholm/colannotate/internal/table"
	"github.com/JonMunkholm/colannotate/internal/timefmt"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var (
	msgAmbiguous = UserMessage{
		Message: "Several columns matched equally well and none could be chosen",
		Action:  "Rename or drop one of the competing columns and rerun",
		Code:    "ANN001",
	}
	msgContract = UserMessage{
		Message: "The oracle replied outside the allowed answers",
		Action:  "Rerun, or switch to a model that follows instructions",
		Code:    "ANN002",
	}
	msgSelection = UserMessage{
		Message: "No primary column could be chosen",
		Action:  "Mark the primary column by hand if one is needed",
		Code:    "ANN003",
	}
	msgUnavailable = UserMessage{
		Message: "The oracle could not be reached",
		Action:  "Check the oracle endpoint and key, then rerun",
		Code:    "ANN004",
	}
	msgBusy = UserMessage{
		Message: "System is busy processing other annotation runs",
		Action:  "Please wait a moment and try again",
		Code:    "RUN001",
	}
)

// errorSentinel maps a sentinel error to its user message.
type errorSentinel struct {
	err error
	msg UserMessage
}

// Order matters: a selection failure caused by an unreachable oracle is
// still reported as ANN003 because the run recovers from it.
var errorSentinels = []errorSentinel{
	{ErrInvalidSelection, msgSelection},
	{ErrAmbiguousMatch, msgAmbiguous},
	{ErrOracleContract, msgContract},
	{timefmt.ErrInvalidFormat, msgContract},
	{ErrOracleUnavailable, msgUnavailable},
	{oracle.ErrEmptyReply, msgUnavailable},
	{ErrTooManyRuns, msgBusy},
	{ErrRunNotFound, UserMessage{
		Message: "Annotation run not found",
		Action:  "The run may have expired. Please start a new run",
		Code:    "RUN002",
	}},
	{table.ErrUnsupportedFormat, UserMessage{
		Message: "The table source is not a supported format",
		Action:  "Use CSV, TSV, Excel, Arrow, SQLite or a postgres:// URL",
		Code:    "TBL001",
	}},
	{table.ErrNoColumns, UserMessage{
		Message: "The table has no columns",
		Action:  "Check that the file is not empty",
		Code:    "TBL002",
	}},
	{table.ErrRowWidth, UserMessage{
		Message: "A row has more fields than the header",
		Action:  "Check quoting and delimiters in the file",
		Code:    "TBL003",
	}},
}

// errorPattern defines a text pattern to match and its user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	{
		pattern: "operator input",
		msg: UserMessage{
			Message: "No more operator answers could be read",
			Action:  "Run interactively or supply answers for every question",
			Code:    "ANN005",
		},
	},
	{
		pattern: "no such table",
		msg: UserMessage{
			Message: "Table not found",
			Action:  "Verify the table name after '#'",
			Code:    "TBL004",
		},
	},
	{
		pattern: "does not exist",
		msg: UserMessage{
			Message: "Table not found",
			Action:  "Verify the table name after '#'",
			Code:    "TBL004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Try a smaller sample or raise the oracle timeout",
			Code:    "RUN004",
		},
	},
}

// defaultMessage is returned when nothing matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Check the logs for the run",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
//
// Example:
//
//	msg := MapError(err)
//	// msg.Code == "ANN001" for an ambiguous geo pairing
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, s := range errorSentinels {
		if errors.Is(err, s.err) {
			return s.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
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
