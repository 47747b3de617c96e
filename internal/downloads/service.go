// Package downloads delivers purchased product files to their buyers.
package downloads

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/logger"
	"github.com/angelmondragon/digistore-backend/pkg/storage/gcs"
)

const zipContentType = "application/zip"

type purchaseChecker interface {
	HasCompletedPurchase(ctx context.Context, buyerID, productID uuid.UUID) (bool, error)
}

type productFiles interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	ListFiles(ctx context.Context, productID uuid.UUID) ([]models.ProductFile, error)
}

type objectStore interface {
	Open(ctx context.Context, key string) (*gcs.Object, error)
}

// Service authorizes a download and opens the response stream.
type Service struct {
	purchases purchaseChecker
	products  productFiles
	objects   objectStore
	logg      *logger.Logger
}

func NewService(purchases purchaseChecker, products productFiles, objects objectStore, logg *logger.Logger) (*Service, error) {
	if purchases == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "purchase checker required")
	}
	if products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product repository required")
	}
	if objects == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "object store required")
	}
	return &Service{purchases: purchases, products: products, objects: objects, logg: logg}, nil
}

// Stream is an opened download. Headers describe the payload; WriteTo sends it.
type Stream struct {
	FileName    string
	ContentType string
	Size        int64

	write func(w io.Writer) error
}

// ContentDisposition is the attachment header value for the stream.
func (s *Stream) ContentDisposition() string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": s.FileName})
}

func (s *Stream) WriteTo(w io.Writer) error {
	return s.write(w)
}

// Open checks that actor bought productID and prepares its files. A single
// file streams as-is; several files stream as one zip archive.
func (s *Service) Open(ctx context.Context, actor *access.Actor, productID uuid.UUID) (*Stream, error) {
	if actor == nil || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	owned, err := s.purchases.HasCompletedPurchase(ctx, actor.UserID, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check purchase")
	}
	if !owned {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "product not purchased")
	}

	files, err := s.products.ListFiles(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list product files")
	}
	if len(files) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product has no files")
	}

	if len(files) == 1 {
		return s.openSingle(ctx, files[0])
	}

	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	name := "download"
	if product != nil && product.Slug != "" {
		name = product.Slug
	}
	return &Stream{
		FileName:    name + ".zip",
		ContentType: zipContentType,
		Size:        -1,
		write: func(w io.Writer) error {
			return s.writeArchive(ctx, w, files)
		},
	}, nil
}

func (s *Service) openSingle(ctx context.Context, file models.ProductFile) (*Stream, error) {
	obj, err := s.objects.Open(ctx, file.ObjectKey)
	if err != nil {
		return nil, mapObjectError(err)
	}
	contentType := file.ContentType
	if contentType == "" {
		contentType = obj.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return &Stream{
		FileName:    file.FileName,
		ContentType: contentType,
		Size:        obj.Size,
		write: func(w io.Writer) error {
			defer func() { _ = obj.Body.Close() }()
			_, err := io.Copy(w, obj.Body)
			return err
		},
	}, nil
}

func (s *Service) writeArchive(ctx context.Context, w io.Writer, files []models.ProductFile) error {
	zw := zip.NewWriter(w)
	used := make(map[string]bool, len(files))
	for _, file := range files {
		if err := s.addToArchive(ctx, zw, entryName(used, file.FileName), file); err != nil {
			return err
		}
	}
	return zw.Close()
}

func (s *Service) addToArchive(ctx context.Context, zw *zip.Writer, name string, file models.ProductFile) error {
	obj, err := s.objects.Open(ctx, file.ObjectKey)
	if err != nil {
		return fmt.Errorf("open %s: %w", file.ObjectKey, err)
	}
	defer func() { _ = obj.Body.Close() }()

	entry, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate, Modified: file.CreatedAt})
	if err != nil {
		return err
	}
	if _, err := io.Copy(entry, obj.Body); err != nil {
		return fmt.Errorf("copy %s: %w", file.ObjectKey, err)
	}
	return nil
}

// entryName keeps archive entries flat and unique: "a.pdf", "a (2).pdf".
func entryName(used map[string]bool, raw string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/"))
	if name == "." || name == "/" || name == "" {
		name = "file"
	}
	ext := path.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := name
	for n := 2; used[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	used[candidate] = true
	return candidate
}

func mapObjectError(err error) error {
	if errors.Is(err, gcs.ErrObjectNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "file not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "open file")
}
