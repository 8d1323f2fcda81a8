package filestore

import (
	"context"
	"errors"
	"io"
)

// ErrDisabled is returned by Save when no object storage is configured.
var ErrDisabled = errors.New("file storage is disabled")

// Store persists attachments. Save returns a reference that Delete accepts.
type Store interface {
	Save(ctx context.Context, r io.Reader, filename, category string) (string, error)
	Delete(ctx context.Context, reference, category string) (bool, error)
}

// Disabled rejects uploads and treats every delete as a miss.
type Disabled struct{}

func (Disabled) Save(ctx context.Context, r io.Reader, filename, category string) (string, error) {
	return "", ErrDisabled
}

func (Disabled) Delete(ctx context.Context, reference, category string) (bool, error) {
	return false, nil
}
