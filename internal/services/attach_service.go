// Package services – AttachService
//
// AttachService stores uploaded files through storage.Store and keeps one row
// per file. Other services refer to files by hash only and ask this service
// whether hashes exist and belong to a user. Attachment rows and files are the
// only things in the system that are ever removed physically.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/saidovdiyorbek/threads/internal/domain"
	"github.com/saidovdiyorbek/threads/internal/observability"
	"github.com/saidovdiyorbek/threads/internal/repo"
	"github.com/saidovdiyorbek/threads/internal/storage"
)

// Upload is one file of an upload request.
type Upload struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// Uploaded is the public handle of a stored file.
type Uploaded struct {
	Hash string `json:"hash"`
	URL  string `json:"url"`
}

// AttachService implements the attach service operations.
type AttachService struct {
	DB    *gorm.DB
	Store *storage.Store

	// PublicURL is the base of the URLs handed out for uploaded files.
	PublicURL string
}

// NewAttachService constructs an AttachService.
func NewAttachService(db *gorm.DB, store *storage.Store, publicURL string) *AttachService {
	return &AttachService{DB: db, Store: store, PublicURL: strings.TrimRight(publicURL, "/")}
}

func (s *AttachService) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer("services/AttachService").Start(ctx, name, trace.WithAttributes(attrs...))
}

// URL returns the inline URL of hash.
func (s *AttachService) URL(hash string) string {
	return s.PublicURL + "/open/" + hash
}

// Upload stores every file for the caller. Either all files are stored or,
// on the first failure, the ones already written are removed again.
func (s *AttachService) Upload(ctx context.Context, files []Upload) ([]Uploaded, error) {
	ctx, span := s.span(ctx, "Upload", attribute.Int("files", len(files)))
	defer span.End()

	who, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, invalid("at least one file is required")
	}

	var written []domain.Attach
	rollback := func() {
		for _, a := range written {
			s.release(ctx, a)
		}
		hashes := make([]string, len(written))
		for i, a := range written {
			hashes[i] = a.Hash
		}
		if _, err := repo.DeleteAttachesByHash(ctx, s.DB, hashes); err != nil {
			log.Warn().Err(err).Str("request_id", observability.RequestIDFrom(ctx)).Msg("attach rollback failed")
		}
	}

	out := make([]Uploaded, 0, len(files))
	for _, f := range files {
		a, err := s.store(ctx, who.ID, f)
		if err != nil {
			rollback()
			return nil, err
		}
		written = append(written, *a)
		out = append(out, Uploaded{Hash: a.Hash, URL: s.URL(a.Hash)})
	}
	return out, nil
}

func (s *AttachService) store(ctx context.Context, userID uint64, f Upload) (*domain.Attach, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFileCreation, err)
	}
	defer rc.Close()

	hash := storage.NewHash()
	ext := storage.Extension(f.Name)
	saved, err := s.Store.Save(hash, ext, rc)
	if err != nil {
		log.Error().Err(err).Str("origin_name", f.Name).Msg("store upload")
		return nil, fmt.Errorf("%w: %v", ErrFileCreation, err)
	}
	a := &domain.Attach{
		OriginName:  f.Name,
		Size:        saved.Size,
		ContentType: f.ContentType,
		Extension:   ext,
		Path:        saved.Folder,
		FullPath:    saved.FullPath,
		Hash:        hash,
		UserID:      userID,
	}
	if err := repo.CreateAttach(ctx, s.DB, a); err != nil {
		_ = s.Store.Remove(saved.FullPath)
		return nil, err
	}
	return a, nil
}

// Open returns the row and an open handle on the file of an active hash. The
// caller closes the file.
func (s *AttachService) Open(ctx context.Context, hash string) (*domain.Attach, *os.File, error) {
	ctx, span := s.span(ctx, "Open", attribute.String("attach.hash", hash))
	defer span.End()

	a, err := repo.FindAttachByHash(ctx, s.DB, hash)
	if err != nil {
		return nil, nil, err
	}
	if a == nil {
		return nil, nil, ErrAttachNotFound
	}
	f, err := s.Store.Open(a.FullPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrAttachNotFound
		}
		return nil, nil, err
	}
	return a, f, nil
}

// Exists answers the single-hash probe. A hash that is absent or uploaded by
// someone else is reported as ErrAttachNotFound rather than false.
func (s *AttachService) Exists(ctx context.Context, hash string, userID uint64) (bool, error) {
	ok, err := repo.AttachOwned(ctx, s.DB, strings.TrimSpace(hash), userID)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrAttachNotFound
	}
	return true, nil
}

// ListExists reports whether every hash exists and belongs to userID.
func (s *AttachService) ListExists(ctx context.Context, hashes []string, userID uint64) (bool, error) {
	ctx, span := s.span(ctx, "ListExists", attribute.Int("hashes", len(hashes)))
	defer span.End()

	hashes = cleanHashes(hashes)
	if len(hashes) == 0 {
		return true, nil
	}
	n, err := repo.CountOwnedHashes(ctx, s.DB, hashes, userID)
	if err != nil {
		return false, err
	}
	return n == int64(len(hashes)), nil
}

// DeleteList removes the files and then the rows of hashes. File removal
// failures are logged and do not stop the rows from being deleted.
func (s *AttachService) DeleteList(ctx context.Context, hashes []string) error {
	ctx, span := s.span(ctx, "DeleteList", attribute.Int("hashes", len(hashes)))
	defer span.End()

	hashes = cleanHashes(hashes)
	rows, err := repo.ListAttachesByHash(ctx, s.DB, hashes)
	if err != nil {
		return err
	}
	for _, a := range rows {
		s.release(ctx, a)
	}
	_, err = repo.DeleteAttachesByHash(ctx, s.DB, hashes)
	return err
}

func (s *AttachService) release(ctx context.Context, a domain.Attach) {
	if err := s.Store.Remove(a.FullPath); err != nil {
		log.Warn().
			Err(err).
			Str("request_id", observability.RequestIDFrom(ctx)).
			Str("hash", a.Hash).
			Msg("remove attach file")
	}
}
