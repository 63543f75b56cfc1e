// Package storage reads and writes whole JSON documents by key. A Router
// sends every call to exactly one backend: the GitHub contents API, a SQL
// document table, or files in a local directory.
package storage

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

var (
	// ErrNotFound means the document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict means the write was based on a stale revision.
	ErrConflict = errors.New("document revision conflict")
	// ErrInvalidKey is returned for keys that are not plain file names.
	ErrInvalidKey = errors.New("invalid document key")
)

// Backend names as reported by Router.Backend.
const (
	BackendGitHub   = "github"
	BackendLocal    = "local"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Backend is implemented by every storage target.
type Backend interface {
	// Read fetches a document and its revision marker.
	Read(ctx context.Context, key string) Result
	// Write replaces a document and returns the new revision. base is the
	// revision the data was derived from; when it is set and the stored
	// document has moved on, or is gone, the write fails with ErrConflict.
	// An empty base writes unconditionally. message describes the logical
	// change; backends with history record it.
	Write(ctx context.Context, key string, data []byte, base, message string) (string, error)
	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, key string, message string) error
	// List returns the keys of all stored documents.
	List(ctx context.Context) ([]string, error)
}

// Outcome tags a read result.
type Outcome int

const (
	Found Outcome = iota
	NotFound
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "failed"
	}
}

// Result is the outcome of a read. Absence and failure are kept apart so the
// caller decides whether a failed read counts as missing.
type Result struct {
	Outcome  Outcome
	Data     []byte
	Revision string
	Err      error
}

func found(data []byte, revision string) Result {
	return Result{Outcome: Found, Data: data, Revision: revision}
}

func missing() Result {
	return Result{Outcome: NotFound}
}

func failed(err error) Result {
	return Result{Outcome: Failed, Err: err}
}

// AsError converts the result to an error: nil when found, ErrNotFound when
// missing and the underlying failure otherwise.
func (r Result) AsError() error {
	switch r.Outcome {
	case Found:
		return nil
	case NotFound:
		return ErrNotFound
	default:
		if r.Err == nil {
			return errors.New("read failed")
		}
		return r.Err
	}
}

// StatusError is an unexpected HTTP status from a remote backend.
type StatusError struct {
	Op         string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Op, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Unwrap maps conflict and not-found statuses onto the package sentinels.
func (e *StatusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return ErrConflict
	case http.StatusNotFound:
		return ErrNotFound
	}
	return nil
}

// BlobSHA returns the git blob hash of data, the same revision marker the
// GitHub contents API reports for a file with these bytes.
func BlobSHA(data []byte) string {
	h := sha1.New()
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// ValidateKey accepts flat file names only.
func ValidateKey(key string) error {
	if key == "" || key == "." || key == ".." || strings.HasPrefix(key, ".") ||
		strings.ContainsAny(key, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
