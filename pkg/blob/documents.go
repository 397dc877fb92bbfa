package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
)

const documentPrefix = "documents"

// Documents stores source document binaries by document id.
type Documents struct {
	store BlobStore
}

func NewDocuments(store BlobStore) *Documents {
	return &Documents{store: store}
}

func documentKey(documentID string) string {
	return documentPrefix + "/" + documentID + ".pdf"
}

// StoreDocumentBlob saves the document bytes, replacing any previous version.
func (d *Documents) StoreDocumentBlob(ctx context.Context, documentID string, data []byte) error {
	if documentID == "" {
		return errors.New("document id is required")
	}
	if err := d.store.Put(ctx, documentKey(documentID), bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to store document %s: %w", documentID, err)
	}
	return nil
}

// FetchDocumentBlob returns a URL for the stored document.
func (d *Documents) FetchDocumentBlob(ctx context.Context, documentID string) (string, error) {
	return d.store.URL(ctx, documentKey(documentID))
}

// OpenDocumentBlob returns the raw document bytes.
func (d *Documents) OpenDocumentBlob(ctx context.Context, documentID string) ([]byte, error) {
	rc, err := d.store.Get(ctx, documentKey(documentID))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", documentID, err)
	}
	return buf.Bytes(), nil
}
