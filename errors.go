package pack

import "errors"

// Sentinel errors for the container codec and file dispatch.
//
// Schema-class failures are reported as schema.ErrNoDefinition (wrapped), so
// tooling can distinguish "needs schema update" from a corrupt payload.
var (
	// ErrFormat is returned when a container header or index is truncated
	// or malformed. It aborts reading that container.
	ErrFormat = errors.New("pack: malformed container")

	// ErrEncryptionUnsupported is returned when a container declares an
	// encrypted index or payload. Encrypted containers are read-rejected.
	ErrEncryptionUnsupported = errors.New("pack: encrypted containers are not supported")

	// ErrDecode is returned when an entry payload cannot be decoded. The
	// entry's raw cache is left intact so the caller can retry.
	ErrDecode = errors.New("pack: decode failed")

	// ErrNoSchema is returned when decoding a table entry without a schema
	// registry in the decode context.
	ErrNoSchema = errors.New("pack: no schema registry in decode context")

	// ErrNotFound is returned when an entry path does not exist.
	ErrNotFound = errors.New("pack: entry not found")

	// ErrExists is returned when an operation would overwrite an existing
	// entry it is not allowed to replace.
	ErrExists = errors.New("pack: entry already exists")

	// ErrTypeConflict is returned when an operation mixes incompatible
	// entry types, e.g. merging a DB table into a Loc table.
	ErrTypeConflict = errors.New("pack: entry type conflict")

	// ErrNoSavePath is returned by Save when the container has never been
	// saved and no destination was given.
	ErrNoSavePath = errors.New("pack: container has no disk path")

	// ErrReserved is returned when a caller tries to address an entry
	// under the reserved metadata prefix.
	ErrReserved = errors.New("pack: path is reserved for container metadata")
)
