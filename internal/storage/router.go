package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kerhoff/wishlist/internal/config"
	"github.com/Kerhoff/wishlist/internal/metrics"
)

// Router is the backend-agnostic document API. It forwards each call to a
// single backend chosen at construction: no fallback and no cache.
type Router struct {
	backend Backend
	name    string
	logger  *logrus.Logger
	metrics *metrics.Metrics
	closer  io.Closer
}

// NewRouter wraps an already constructed backend.
func NewRouter(name string, backend Backend, logger *logrus.Logger, m *metrics.Metrics) *Router {
	return &Router{backend: backend, name: name, logger: logger, metrics: m}
}

// Open picks the backend from configuration: GitHub when remote credentials
// are complete, else the SQL document table when DATABASE_URL is set, else
// local files under DataDir.
func Open(cfg *config.Config, logger *logrus.Logger, m *metrics.Metrics) (*Router, error) {
	if cfg.PartiallyRemote() {
		logger.Warn("Only one of ACCESS_TOKEN and REPOSITORY is set; remote storage stays disabled")
	}

	switch {
	case cfg.IsRemoteConfigured():
		gh := NewGitHubBackend(GitHubOptions{
			BaseURL:    cfg.APIBaseURL,
			Repository: cfg.Repository,
			PathPrefix: cfg.PathPrefix,
			Branch:     cfg.Branch,
			Token:      cfg.AccessToken,
			Timeout:    cfg.HTTPTimeout,
		}, logger)
		logger.WithFields(logrus.Fields{
			"repository": cfg.Repository,
			"prefix":     cfg.PathPrefix,
			"branch":     cfg.Branch,
		}).Info("Using GitHub storage")
		return NewRouter(BackendGitHub, gh, logger, m), nil

	case cfg.DatabaseURL != "":
		db, err := config.NewDatabase(cfg.DatabaseURL, logger)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
		logger.WithField("driver", db.Driver).Info("Using SQL document storage")
		r := NewRouter(db.Driver, NewSQLBackend(db.DB, db.Driver), logger, m)
		r.closer = db
		return r, nil

	default:
		logger.WithField("dir", cfg.DataDir).Info("Using local file storage")
		return NewRouter(BackendLocal, NewLocalBackend(cfg.DataDir), logger, m), nil
	}
}

// Backend names the active backend.
func (r *Router) Backend() string {
	return r.name
}

// IsRemote reports whether documents go to the GitHub backend.
func (r *Router) IsRemote() bool {
	return r.name == BackendGitHub
}

func (r *Router) entry(op, key string) *logrus.Entry {
	return r.logger.WithFields(logrus.Fields{
		"backend": r.name,
		"op":      op,
		"key":     key,
	})
}

func writeOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Read returns the document at key as a tagged result.
func (r *Router) Read(ctx context.Context, key string) Result {
	if err := ValidateKey(key); err != nil {
		return failed(err)
	}
	started := time.Now()
	res := r.backend.Read(ctx, key)
	r.metrics.ObserveStorage(r.name, "read", res.Outcome.String(), started)

	e := r.entry("read", key).WithField("outcome", res.Outcome.String())
	if res.Outcome == Failed {
		e.WithError(res.Err).Warn("Document read failed")
	} else {
		e.Debug("Document read")
	}
	return res
}

// Write stores data at key and returns the new revision. See Backend.Write
// for base.
func (r *Router) Write(ctx context.Context, key string, data []byte, base, message string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	started := time.Now()
	rev, err := r.backend.Write(ctx, key, data, base, message)
	r.metrics.ObserveStorage(r.name, "write", writeOutcome(err), started)
	if err != nil {
		r.entry("write", key).WithError(err).Warn("Document write failed")
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	r.entry("write", key).WithFields(logrus.Fields{
		"base":     base,
		"revision": rev,
		"message":  message,
	}).Debug("Document written")
	return rev, nil
}

// Delete removes the document at key.
func (r *Router) Delete(ctx context.Context, key string, message string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	started := time.Now()
	err := r.backend.Delete(ctx, key, message)
	r.metrics.ObserveStorage(r.name, "delete", writeOutcome(err), started)
	if err != nil {
		r.entry("delete", key).WithError(err).Warn("Document delete failed")
		return fmt.Errorf("delete %s: %w", key, err)
	}
	r.entry("delete", key).Debug("Document deleted")
	return nil
}

// List returns all document keys.
func (r *Router) List(ctx context.Context) ([]string, error) {
	started := time.Now()
	keys, err := r.backend.List(ctx)
	r.metrics.ObserveStorage(r.name, "list", writeOutcome(err), started)
	if err != nil {
		r.entry("list", "").WithError(err).Warn("Document listing failed")
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return keys, nil
}

// Close releases the SQL connection pool, if any.
func (r *Router) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
