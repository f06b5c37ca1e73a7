package eventstore

// Sentinel errors for event store operations. These enable consistent
// classification of storage failures without string matching.

import (
	bmerrors "git.home.luguber.info/inful/buildmon/internal/errors"
)

var (
	// ErrDatabaseOpenFailed indicates the SQLite database could not be opened.
	ErrDatabaseOpenFailed = bmerrors.New(bmerrors.CategoryStorage, bmerrors.SeverityError, "could not open event store database")

	// ErrInitializeSchemaFailed indicates the database schema could not be initialized.
	ErrInitializeSchemaFailed = bmerrors.New(bmerrors.CategoryStorage, bmerrors.SeverityError, "failed to initialize event store schema")

	// ErrEventAppendFailed indicates appending an event failed.
	ErrEventAppendFailed = bmerrors.New(bmerrors.CategoryStorage, bmerrors.SeverityWarning, "failed to append event to store")

	// ErrEventQueryFailed indicates querying events failed.
	ErrEventQueryFailed = bmerrors.New(bmerrors.CategoryStorage, bmerrors.SeverityWarning, "failed to query events from store")

	// ErrEventScanFailed indicates scanning event rows failed.
	ErrEventScanFailed = bmerrors.New(bmerrors.CategoryStorage, bmerrors.SeverityWarning, "failed to scan event rows")

	// ErrMarshalPayloadFailed indicates JSON marshaling of an event payload failed.
	ErrMarshalPayloadFailed = bmerrors.New(bmerrors.CategoryStorage, bmerrors.SeverityWarning, "failed to marshal event payload")
)
