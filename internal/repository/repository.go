// Package repository contains data access layer abstractions.
// Implementations live in subpackages (e.g., postgres) inside this directory.
package repository

import "errors"

// ErrStaleRevision is returned by Update when the stored revision no longer
// matches the one the caller read, meaning a concurrent write won.
var ErrStaleRevision = errors.New("stale document revision")
