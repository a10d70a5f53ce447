// Package backup moves the whole engine state through a single JSON
// snapshot document, the unit of export, import and crash recovery.
package backup

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"jualin/pos/internal/domain"
	"jualin/pos/internal/store"
)

// SnapshotVersion is bumped when the snapshot layout changes.
const SnapshotVersion = 1

// Export writes the repository's full state to w as a snapshot document.
// Attachment payloads are base64-armored so the snapshot stays a plain JSON
// file.
func Export(ctx context.Context, repo store.Repository, w io.Writer) error {
	snapshot, err := Collect(ctx, repo)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snapshot); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// Collect assembles a snapshot of the repository's current state.
func Collect(ctx context.Context, repo store.Repository) (domain.Snapshot, error) {
	snapshot := domain.Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: time.Now().UTC(),
	}

	var err error
	if snapshot.Products, err = repo.ListProducts(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect products: %w", err)
	}
	if snapshot.Variants, err = repo.ListVariants(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect variants: %w", err)
	}
	if snapshot.Bundles, err = repo.ListBundles(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect bundles: %w", err)
	}
	if snapshot.Sales, err = repo.ListSales(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect sales: %w", err)
	}
	if snapshot.Orders, err = repo.ListOrders(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect orders: %w", err)
	}
	if snapshot.Users, err = repo.ListUsers(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect users: %w", err)
	}

	attachments, err := repo.ListAttachments(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("collect attachments: %w", err)
	}
	snapshot.Attachments = make([]domain.AttachmentDump, 0, len(attachments))
	for _, att := range attachments {
		snapshot.Attachments = append(snapshot.Attachments, domain.AttachmentDump{
			Collection: att.Collection,
			OwnerID:    att.OwnerID,
			Name:       att.Name,
			MIMEType:   att.MIMEType,
			Data:       base64.StdEncoding.EncodeToString(att.Data),
			UpdatedAt:  att.UpdatedAt,
		})
	}
	return snapshot, nil
}

// Import reads a snapshot document from r and replaces the repository's
// entire state with it.
func Import(ctx context.Context, repo store.Repository, r io.Reader) error {
	var snapshot domain.Snapshot
	dec := json.NewDecoder(r)
	if err := dec.Decode(&snapshot); err != nil {
		return fmt.Errorf("%w: decode snapshot: %v", store.ErrInvalidInput, err)
	}
	return Restore(ctx, repo, snapshot)
}

// Restore applies a decoded snapshot to the repository.
func Restore(ctx context.Context, repo store.Repository, snapshot domain.Snapshot) error {
	if snapshot.Version != SnapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %d", store.ErrInvalidInput, snapshot.Version)
	}

	// Decode payloads up front so a corrupt snapshot fails before the store
	// is touched.
	attachments := make([]domain.Attachment, 0, len(snapshot.Attachments))
	for _, dump := range snapshot.Attachments {
		data, err := base64.StdEncoding.DecodeString(dump.Data)
		if err != nil {
			return fmt.Errorf("%w: attachment %s/%s/%s: %v", store.ErrInvalidInput, dump.Collection, dump.OwnerID, dump.Name, err)
		}
		attachments = append(attachments, domain.Attachment{
			Collection: dump.Collection,
			OwnerID:    dump.OwnerID,
			Name:       dump.Name,
			MIMEType:   dump.MIMEType,
			Data:       data,
			UpdatedAt:  dump.UpdatedAt,
		})
	}

	if err := repo.ReplaceAll(ctx, snapshot); err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}
	for _, att := range attachments {
		if err := repo.PutAttachment(ctx, att); err != nil {
			return fmt.Errorf("restore attachment %s/%s/%s: %w", att.Collection, att.OwnerID, att.Name, err)
		}
	}
	return nil
}
