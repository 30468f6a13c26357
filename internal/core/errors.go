package core

import (
	"errors"
	"fmt"
)

var (
	// ErrTableExists is wrapped by Catalog.CreateTable when the table is already there.
	ErrTableExists = errors.New("table already exists")

	// ErrColumnCount reports a row whose width does not match the destination layout.
	ErrColumnCount = errors.New("column count mismatch")

	// ErrColumnNotFound reports a configured column missing from a relation.
	ErrColumnNotFound = errors.New("column not found")

	// ErrIDColumnClash reports an identity column name already taken by a
	// destination column.
	ErrIDColumnClash = errors.New("identity column collides with a destination column")
)

// ConnectionError is returned when the store cannot be reached. It aborts
// the run before any table is touched.
type ConnectionError struct {
	Driver string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Driver, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// LoadError is returned when the source table or a reference relation
// cannot be read or lacks a required column.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Table, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// SchemaError is returned when a destination table is absent and could not
// be created. An "already exists" outcome is never reported as SchemaError.
type SchemaError struct {
	Table string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("creation failed for table %s: %v", e.Table, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// WriteError is returned when a row could not be inserted and committed.
// Row is the 1-based position of the row in the source table.
type WriteError struct {
	Table string
	Row   int
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed for row %d into %s: %v", e.Row, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
