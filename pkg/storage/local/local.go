// Package local handles filesystem storage of backup archives.
package local

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
)

// Client stores archive files on the local filesystem. Each backup owns its
// storage location exclusively; locations are derived from the backup id and
// never reused.
type Client struct {
	backupDir string
	uploadDir string
}

// NewClient creates a new local storage client.
func NewClient(backupDir, uploadDir string) (*Client, error) {
	if backupDir == "" {
		return nil, fmt.Errorf("backup directory is not configured")
	}
	if uploadDir == "" {
		uploadDir = filepath.Join(backupDir, "uploads")
	}

	for _, dir := range []string{backupDir, uploadDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	return &Client{backupDir: backupDir, uploadDir: uploadDir}, nil
}

// ArchiveExtension returns the canonical file extension for a backup type.
func ArchiveExtension(backupType types.BackupType) string {
	if backupType == types.TypeDatabase {
		return ".json.gz"
	}
	return ".tar.gz"
}

// Save writes a produced archive and returns its storage location.
func (c *Client) Save(backupID string, backupType types.BackupType, data []byte) (string, error) {
	location := filepath.Join(c.backupDir, backupID+ArchiveExtension(backupType))
	if _, err := os.Stat(location); err == nil {
		return "", fmt.Errorf("storage location %s already exists", location)
	}
	if err := os.WriteFile(location, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write archive: %w", err)
	}
	return location, nil
}

// SaveUpload persists an externally supplied backup file and returns its
// storage location. The original extension is preserved so the archive codec
// can sniff the container format.
func (c *Client) SaveUpload(backupID, filename string, data []byte) (string, error) {
	location := filepath.Join(c.uploadDir, backupID+"-"+filepath.Base(filename))
	if _, err := os.Stat(location); err == nil {
		return "", fmt.Errorf("storage location %s already exists", location)
	}
	if err := os.WriteFile(location, data, 0644); err != nil {
		return "", fmt.Errorf("failed to persist upload: %w", err)
	}
	return location, nil
}

// Read returns the archive bytes at a storage location.
func (c *Client) Read(location string) ([]byte, error) {
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("failed to read archive at %s: %w", location, err)
	}
	return data, nil
}

// Size returns the size in bytes of the archive at a storage location.
func (c *Client) Size(location string) (int64, error) {
	info, err := os.Stat(location)
	if err != nil {
		return 0, fmt.Errorf("failed to stat archive at %s: %w", location, err)
	}
	return info.Size(), nil
}

// Delete releases a backup's archive storage. Missing files are tolerated so
// retention cleanup is idempotent.
func (c *Client) Delete(location string) error {
	if location == "" {
		return nil
	}
	if err := os.Remove(location); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete archive at %s: %w", location, err)
	}
	return nil
}
