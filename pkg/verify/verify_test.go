package verify

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galenelijah/USC-PIS-sub001/pkg/archive"
	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
)

type fakeReader struct {
	archives map[string][]byte
}

func (f *fakeReader) Read(location string) ([]byte, error) {
	data, ok := f.archives[location]
	if !ok {
		return nil, fmt.Errorf("no archive at %s", location)
	}
	return data, nil
}

func encodedArchive(t *testing.T, backupType types.BackupType) ([]byte, archive.Manifest) {
	t.Helper()

	snapshot := records.Snapshot{
		"Patient": {
			{"id": "p-1", "name": "Juan"},
			{"id": "p-2", "name": "Maria"},
		},
	}
	var mediaFiles []archive.MediaEntry
	if backupType != types.TypeDatabase {
		snapshot = nil
		mediaFiles = []archive.MediaEntry{
			{File: media.File{Collection: "photos", Name: "p-1.jpg"}, Data: []byte("jpeg")},
		}
	}

	data, manifest, err := archive.Encode(backupType, snapshot, mediaFiles)
	require.NoError(t, err)
	return data, manifest
}

func TestVerifyValidArchive(t *testing.T) {
	data, manifest, err := archive.Encode(types.TypeDatabase, records.Snapshot{
		"Patient": {{"id": "p-1"}, {"id": "p-2"}},
	}, nil)
	require.NoError(t, err)

	v := NewVerifier(&fakeReader{archives: map[string][]byte{"loc": data}})
	result := v.Verify(types.Backup{
		ID:              "b-1",
		BackupType:      types.TypeDatabase,
		Status:          types.StatusSuccess,
		StorageLocation: "loc",
		RecordCount:     manifest.TotalRecords,
	})

	assert.True(t, result.Valid)
	assert.Equal(t, 2, result.CheckedRecords)
}

func TestVerifyDetectsCountMismatch(t *testing.T) {
	data, _ := encodedArchive(t, types.TypeDatabase)

	v := NewVerifier(&fakeReader{archives: map[string][]byte{"loc": data}})
	result := v.Verify(types.Backup{
		ID:              "b-1",
		BackupType:      types.TypeDatabase,
		Status:          types.StatusSuccess,
		StorageLocation: "loc",
		RecordCount:     99,
	})

	assert.False(t, result.Valid)
}

func TestVerifyUnknownCountsAccepted(t *testing.T) {
	// Uploaded backups carry no record counts; the archive's internal
	// consistency is all that can be checked.
	data, _ := encodedArchive(t, types.TypeMedia)

	v := NewVerifier(&fakeReader{archives: map[string][]byte{"loc": data}})
	result := v.Verify(types.Backup{
		ID:              "b-1",
		BackupType:      types.TypeMedia,
		Source:          types.SourceUploaded,
		Status:          types.StatusSuccess,
		StorageLocation: "loc",
	})

	assert.True(t, result.Valid)
	assert.Equal(t, 1, result.CheckedFiles)
}

func TestVerifyUnreadableArchive(t *testing.T) {
	v := NewVerifier(&fakeReader{archives: map[string][]byte{}})
	result := v.Verify(types.Backup{
		ID:              "b-1",
		BackupType:      types.TypeDatabase,
		StorageLocation: "missing",
	})

	assert.False(t, result.Valid)
	assert.Contains(t, result.Message, "could not be read")
}

func TestVerifyMalformedArchive(t *testing.T) {
	v := NewVerifier(&fakeReader{archives: map[string][]byte{"loc": []byte("garbage")}})
	result := v.Verify(types.Backup{
		ID:              "b-1",
		BackupType:      types.TypeDatabase,
		StorageLocation: "loc",
	})

	assert.False(t, result.Valid)
}
