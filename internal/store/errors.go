// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrUnknownPage is returned when an element is written for a page
	// that does not exist.
	ErrUnknownPage = errors.New("unknown page")
	// ErrNotFound is returned by status changes on a missing element.
	ErrNotFound = errors.New("element not found")
	// ErrStatusConflict means the element's status changed underneath a
	// transition.
	ErrStatusConflict = errors.New("element status changed concurrently")
	// ErrTypeMismatch means a write used a different element type than
	// the stored element.
	ErrTypeMismatch = errors.New("element type mismatch")
)

// ErrorKind tells callers whether a failed operation may be retried.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// RepositoryError wraps every failure returned by a repository.
type RepositoryError struct {
	Op   string
	Kind ErrorKind
	Err  error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s (%s): %v", e.Op, e.Kind, e.Err)
}

func (e *RepositoryError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable repository failure.
func Transient(op string, err error) error {
	return &RepositoryError{Op: op, Kind: KindTransient, Err: err}
}

// Permanent wraps err as a non-retryable repository failure.
func Permanent(op string, err error) error {
	return &RepositoryError{Op: op, Kind: KindPermanent, Err: err}
}

// IsTransient reports whether err is a retryable repository failure.
func IsTransient(err error) bool {
	var re *RepositoryError
	return errors.As(err, &re) && re.Kind == KindTransient
}

// wrap classifies err and wraps it for op. Errors that are already
// classified keep their kind.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var re *RepositoryError
	if errors.As(err, &re) {
		return err
	}
	return &RepositoryError{Op: op, Kind: classify(err), Err: err}
}

func classify(err error) ErrorKind {
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone):
		return KindTransient
	case errors.Is(err, context.Canceled):
		return KindPermanent
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if len(pgErr.Code) < 2 {
			return KindPermanent
		}
		switch pgErr.Code[:2] {
		// connection exception, transaction rollback (serialization,
		// deadlock), insufficient resources, operator intervention,
		// system error
		case "08", "40", "53", "57", "58":
			return KindTransient
		}
		return KindPermanent
	}

	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return KindTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransient
	}
	return KindPermanent
}
