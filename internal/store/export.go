package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rcliao/memory-server/internal/model"
)

// ExportLimit caps how many records Export returns.
const ExportLimit = 100000

// MetaImportedCreatedAt keeps the creation time of an imported record.
const MetaImportedCreatedAt = "importedCreatedAt"

// Export returns all records of a user, newest first.
func Export(ctx context.Context, s Store, userID string) ([]model.Record, error) {
	return s.GetAll(ctx, userID, ExportLimit)
}

// Import saves records from an export under userID. Records get new ids;
// each original createdAt is kept under importedCreatedAt.
func Import(ctx context.Context, s Store, userID string, records []model.Record) (int, error) {
	imported := 0
	for _, r := range records {
		meta := r.Metadata.Clone()
		if created, ok := meta[model.MetaCreatedAt]; ok {
			meta[MetaImportedCreatedAt] = created
		}
		delete(meta, model.MetaCreatedAt)
		delete(meta, model.MetaUpdatedAt)
		if _, ok := meta[model.MetaOriginalText]; !ok {
			meta[model.MetaOriginalText] = r.Memory
		}

		if _, err := s.Save(ctx, userID, r.Memory, meta); err != nil {
			return imported, errors.Wrapf(err, "import %s", r.ID)
		}
		imported++
	}
	return imported, nil
}
