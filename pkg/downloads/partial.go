package downloads

import (
	"os"
	"path/filepath"
	"time"

	"github.com/kyonifer/silveran-reader-sub004/pkg/models"
	"github.com/kyonifer/silveran-reader-sub004/pkg/remote"
	"github.com/pkg/errors"
	"github.com/segmentio/encoding/json"
)

// partialMetadata sits next to a partially downloaded file so a later
// transfer can ask the server for the rest.
type partialMetadata struct {
	BookUUID     string         `json:"book_uuid"`
	Variant      models.Variant `json:"variant"`
	ETag         string         `json:"etag,omitempty"`
	LastModified string         `json:"last_modified,omitempty"`
	Received     int64          `json:"received"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// validator is what goes into If-Range. A strong ETag is preferred.
func (m *partialMetadata) validator() string {
	if m.ETag != "" {
		return m.ETag
	}
	return m.LastModified
}

func partialFilename(dir string, ref remote.AssetRef) string {
	return filepath.Join(dir, ref.BookUUID+"."+string(ref.Variant)+".part")
}

func metadataFilename(dir string, ref remote.AssetRef) string {
	return partialFilename(dir, ref) + ".json"
}

func completedFilename(dir string, ref remote.AssetRef) string {
	return filepath.Join(dir, ref.BookUUID+"."+string(ref.Variant)+".download")
}

// readMetadata returns nil when there is no sidecar.
func readMetadata(dir string, ref remote.AssetRef) (*partialMetadata, error) {
	path := metadataFilename(dir, ref)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to read partial download metadata: %s", path)
	}

	var meta partialMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, errors.Wrapf(err, "failed to parse partial download metadata: %s", path)
	}
	return &meta, nil
}

func writeMetadata(dir string, ref remote.AssetRef, meta *partialMetadata) error {
	path := metadataFilename(dir, ref)

	meta.UpdatedAt = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal partial download metadata")
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return errors.Wrapf(err, "failed to write partial download metadata: %s", path)
	}
	return nil
}

// removePartial deletes the partial file and its sidecar.
func removePartial(dir string, ref remote.AssetRef) error {
	for _, path := range []string{partialFilename(dir, ref), metadataFilename(dir, ref)} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "failed to delete partial download: %s", path)
		}
	}
	return nil
}

// removeTransfer deletes everything a transfer of ref left in dir, including
// a finished file nobody claimed.
func removeTransfer(dir string, ref remote.AssetRef) error {
	if err := removePartial(dir, ref); err != nil {
		return err
	}
	path := completedFilename(dir, ref)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete finished download: %s", path)
	}
	return nil
}

// resumePoint reports where a previous attempt left off. Nothing is resumed
// without a validator, since the server couldn't tell us whether the bytes we
// hold are still current.
func resumePoint(dir string, ref remote.AssetRef) (int64, string) {
	meta, err := readMetadata(dir, ref)
	if err != nil || meta == nil || meta.validator() == "" {
		return 0, ""
	}
	info, err := os.Stat(partialFilename(dir, ref))
	if err != nil || info.Size() == 0 {
		return 0, ""
	}
	return info.Size(), meta.validator()
}

// CleanupPartials removes partial downloads that haven't been touched for
// maxAge.
func CleanupPartials(dir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to read transfer directory: %s", dir)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var meta partialMetadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		if meta.UpdatedAt.After(cutoff) {
			continue
		}
		ref := remote.AssetRef{BookUUID: meta.BookUUID, Variant: meta.Variant}
		if err := removePartial(dir, ref); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}
