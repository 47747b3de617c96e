package downloads

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/digistore-backend/internal/access"
	"github.com/angelmondragon/digistore-backend/pkg/db/models"
	"github.com/angelmondragon/digistore-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/digistore-backend/pkg/errors"
	"github.com/angelmondragon/digistore-backend/pkg/storage/gcs"
)

type stubPurchases struct {
	owned bool
	err   error
}

func (s stubPurchases) HasCompletedPurchase(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return s.owned, s.err
}

type stubProducts struct {
	product *models.Product
	files   []models.ProductFile
}

func (s stubProducts) FindByID(context.Context, uuid.UUID) (*models.Product, error) {
	return s.product, nil
}

func (s stubProducts) ListFiles(context.Context, uuid.UUID) ([]models.ProductFile, error) {
	return s.files, nil
}

type memoryObjects map[string]string

func (m memoryObjects) Open(_ context.Context, key string) (*gcs.Object, error) {
	body, ok := m[key]
	if !ok {
		return nil, gcs.ErrObjectNotFound
	}
	return &gcs.Object{Body: io.NopCloser(strings.NewReader(body)), ContentType: "text/plain", Size: int64(len(body))}, nil
}

var buyer = &access.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}

func newService(t *testing.T, purchases stubPurchases, products stubProducts, objects memoryObjects) *Service {
	t.Helper()
	svc, err := NewService(purchases, products, objects, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func codeOf(err error) pkgerrors.Code {
	return pkgerrors.As(err).Code()
}

func TestOpenRejectsAnonymousAndNonBuyers(t *testing.T) {
	products := stubProducts{files: []models.ProductFile{{FileName: "a.pdf", ObjectKey: "k/a"}}}

	svc := newService(t, stubPurchases{owned: true}, products, memoryObjects{"k/a": "A"})
	if _, err := svc.Open(context.Background(), access.Anonymous(), uuid.New()); codeOf(err) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized, got %v", err)
	}

	svc = newService(t, stubPurchases{}, products, memoryObjects{"k/a": "A"})
	if _, err := svc.Open(context.Background(), buyer, uuid.New()); codeOf(err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}

	svc = newService(t, stubPurchases{err: errors.New("db down")}, products, nil)
	if _, err := svc.Open(context.Background(), buyer, uuid.New()); codeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestOpenWithoutFilesIsNotFound(t *testing.T) {
	svc := newService(t, stubPurchases{owned: true}, stubProducts{}, memoryObjects{})
	if _, err := svc.Open(context.Background(), buyer, uuid.New()); codeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenSingleFileStreamsBody(t *testing.T) {
	products := stubProducts{files: []models.ProductFile{{FileName: "guide.pdf", ObjectKey: "p/guide", ContentType: "application/pdf"}}}
	svc := newService(t, stubPurchases{owned: true}, products, memoryObjects{"p/guide": "%PDF-1.7"})

	stream, err := svc.Open(context.Background(), buyer, uuid.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if stream.ContentType != "application/pdf" || stream.Size != 8 {
		t.Fatalf("unexpected stream metadata: %+v", stream)
	}
	if got := stream.ContentDisposition(); got != `attachment; filename=guide.pdf` {
		t.Fatalf("unexpected disposition %q", got)
	}
	var buf bytes.Buffer
	if err := stream.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "%PDF-1.7" {
		t.Fatalf("unexpected body %q", buf.String())
	}
}

func TestOpenSingleMissingObjectIsNotFound(t *testing.T) {
	products := stubProducts{files: []models.ProductFile{{FileName: "gone.zip", ObjectKey: "p/gone"}}}
	svc := newService(t, stubPurchases{owned: true}, products, memoryObjects{})
	if _, err := svc.Open(context.Background(), buyer, uuid.New()); codeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOpenSeveralFilesStreamsZip(t *testing.T) {
	products := stubProducts{
		product: &models.Product{Slug: "ui-kit"},
		files: []models.ProductFile{
			{FileName: "readme.txt", ObjectKey: "p/1"},
			{FileName: "../assets/readme.txt", ObjectKey: "p/2"},
			{FileName: "icons.svg", ObjectKey: "p/3"},
		},
	}
	objects := memoryObjects{"p/1": "first", "p/2": "second", "p/3": "<svg/>"}
	svc := newService(t, stubPurchases{owned: true}, products, objects)

	stream, err := svc.Open(context.Background(), buyer, uuid.New())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if stream.FileName != "ui-kit.zip" || stream.ContentType != "application/zip" {
		t.Fatalf("unexpected stream metadata: %+v", stream)
	}
	var buf bytes.Buffer
	if err := stream.WriteTo(&buf); err != nil {
		t.Fatalf("write: %v", err)
	}

	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read zip: %v", err)
	}
	want := map[string]string{"readme.txt": "first", "readme (2).txt": "second", "icons.svg": "<svg/>"}
	if len(zr.File) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(zr.File))
	}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", f.Name, err)
		}
		body, _ := io.ReadAll(rc)
		_ = rc.Close()
		if want[f.Name] != string(body) {
			t.Fatalf("entry %s: got %q", f.Name, body)
		}
	}
}

func TestEntryNameNeverRepeats(t *testing.T) {
	used := map[string]bool{}
	var got []string
	for _, raw := range []string{"a.pdf", "a (2).pdf", "a.pdf", "dir\\a.pdf", " ", "a (2).pdf"} {
		got = append(got, entryName(used, raw))
	}
	want := []string{"a.pdf", "a (2).pdf", "a (3).pdf", "a (4).pdf", "file", "a (2) (2).pdf"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: want %q, got %q (all %v)", i, want[i], got[i], got)
		}
	}
}
