// Package errs collects the sentinel error kinds surfaced by the core
// engine's subsystems. Callers use errors.Is/errors.As against these values
// instead of matching on message text.
package errs

import "errors"

// Pool errors.
var (
	ErrAcquireTimeout = errors.New("pool: acquire timed out waiting for a connection")
	ErrConnectFailed  = errors.New("pool: connection attempt failed")
	ErrPoolClosed     = errors.New("pool: pool is closed")
)

// Dialect / query builder errors.
var (
	ErrInvalidIdentifier  = errors.New("query: invalid identifier")
	ErrNullForNonNullable = errors.New("query: null value for non-nullable column")
	ErrTypeMismatch       = errors.New("query: value type does not match column type")
	ErrBuilderConsumed    = errors.New("query: builder already consumed")
)

// Transaction errors.
var (
	ErrNestedTransaction  = errors.New("query: transaction already active on this connection")
	ErrTransactionNotOpen = errors.New("query: no such open transaction")
)

// Dynamic CRUD errors.
var (
	ErrTableForbidden   = errors.New("dynamicrud: table is not on the allow list")
	ErrTableNotFound    = errors.New("dynamicrud: table does not exist")
	ErrFieldNotFound    = errors.New("dynamicrud: field does not exist on table")
	ErrInvalidFieldValue = errors.New("dynamicrud: value does not fit the column's declared type")
)

// Container errors.
var (
	ErrAlreadyInitialized = errors.New("container: already initialized")
	ErrNotInitialized     = errors.New("container: not initialized")
)

// Plugin registry errors.
var (
	ErrPluginChecksumMismatch = errors.New("plugin: manifest checksum mismatch")
	ErrPluginStopTimeout      = errors.New("plugin: stop timed out")
	ErrPluginUnknownCapability = errors.New("plugin: capability not declared in manifest")
	ErrPluginInvalidTransition = errors.New("plugin: invalid lifecycle transition")
	ErrPluginAlreadyRegistered = errors.New("plugin: already registered")
)
