package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
)

func sampleSnapshot() records.Snapshot {
	return records.Snapshot{
		"Patient": {
			{"id": "p-1", "name": "Juan Dela Cruz", "email": "juan@example.com"},
			{"id": "p-2", "name": "Maria Santos", "email": ""},
		},
		"MedicalRecord": {
			{"id": "m-1", "patient_id": "p-1", "diagnosis": "healthy"},
		},
	}
}

func sampleMedia() []MediaEntry {
	return []MediaEntry{
		{File: media.File{Collection: "certificates", Name: "cert-1.pdf"}, Data: []byte("pdf bytes")},
		{File: media.File{Collection: "photos", Name: "p-1.jpg"}, Data: []byte("jpeg bytes")},
	}
}

func TestEncodeDecodeDatabase(t *testing.T) {
	data, manifest, err := Encode(types.TypeDatabase, sampleSnapshot(), nil)
	require.NoError(t, err)

	assert.Equal(t, FormatVersion, manifest.FormatVersion)
	assert.Equal(t, types.TypeDatabase, manifest.BackupType)
	assert.Equal(t, 3, manifest.TotalRecords)
	assert.Equal(t, 0, manifest.FileCount)
	assert.Equal(t, 2, manifest.RecordCounts["Patient"])

	snapshot, mediaFiles, decoded, err := Decode(data, types.TypeDatabase)
	require.NoError(t, err)
	assert.Empty(t, mediaFiles)
	assert.Equal(t, manifest.TotalRecords, decoded.TotalRecords)
	require.Len(t, snapshot["Patient"], 2)
	assert.Equal(t, "Juan Dela Cruz", snapshot["Patient"][0]["name"])
}

func TestEncodeDecodeMedia(t *testing.T) {
	data, manifest, err := Encode(types.TypeMedia, nil, sampleMedia())
	require.NoError(t, err)

	assert.Equal(t, 0, manifest.TotalRecords)
	assert.Equal(t, 2, manifest.FileCount)

	snapshot, mediaFiles, _, err := Decode(data, types.TypeMedia)
	require.NoError(t, err)
	assert.Empty(t, snapshot)
	require.Len(t, mediaFiles, 2)
	assert.Equal(t, "certificates", mediaFiles[0].File.Collection)
	assert.Equal(t, []byte("pdf bytes"), mediaFiles[0].Data)
}

func TestEncodeDecodeFull(t *testing.T) {
	data, manifest, err := Encode(types.TypeFull, sampleSnapshot(), sampleMedia())
	require.NoError(t, err)

	assert.Equal(t, 3, manifest.TotalRecords)
	assert.Equal(t, 2, manifest.FileCount)

	snapshot, mediaFiles, _, err := Decode(data, types.TypeFull)
	require.NoError(t, err)
	assert.Len(t, snapshot["Patient"], 2)
	assert.Len(t, mediaFiles, 2)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, _, _, err := Decode([]byte("not an archive at all"), types.TypeDatabase)
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestDecodeRejectsTruncatedGzip(t *testing.T) {
	data, _, err := Encode(types.TypeDatabase, sampleSnapshot(), nil)
	require.NoError(t, err)

	_, _, _, err = Decode(data[:len(data)/2], types.TypeDatabase)
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestDecodeRejectsTypeMismatch(t *testing.T) {
	dbArchive, _, err := Encode(types.TypeDatabase, sampleSnapshot(), nil)
	require.NoError(t, err)

	_, _, _, err = Decode(dbArchive, types.TypeMedia)
	assert.ErrorIs(t, err, ErrMalformedArchive)

	mediaArchive, _, err := Encode(types.TypeMedia, nil, sampleMedia())
	require.NoError(t, err)

	_, _, _, err = Decode(mediaArchive, types.TypeDatabase)
	assert.ErrorIs(t, err, ErrMalformedArchive)
}

func TestDecodeRoundTripsNumbers(t *testing.T) {
	snapshot := records.Snapshot{
		"Patient": {{"id": "p-1", "age": 42}},
	}

	data, _, err := Encode(types.TypeDatabase, snapshot, nil)
	require.NoError(t, err)

	decoded, _, _, err := Decode(data, types.TypeDatabase)
	require.NoError(t, err)

	// JSON decodes numbers as float64; comparison helpers normalize.
	assert.True(t, records.ValuesEqual(snapshot["Patient"][0]["age"], decoded["Patient"][0]["age"]))
}

func TestCheckStructure(t *testing.T) {
	dbArchive, _, err := Encode(types.TypeDatabase, sampleSnapshot(), nil)
	require.NoError(t, err)
	fullArchive, _, err := Encode(types.TypeFull, sampleSnapshot(), sampleMedia())
	require.NoError(t, err)

	tests := []struct {
		name         string
		filename     string
		head         []byte
		declaredType types.BackupType
		wantErr      bool
	}{
		{"valid database upload", "backup.json.gz", dbArchive[:64], types.TypeDatabase, false},
		{"valid full upload", "backup.tar.gz", fullArchive[:64], types.TypeFull, false},
		{"wrong extension for type", "backup.json.gz", dbArchive[:64], types.TypeFull, true},
		{"tar archive declared as record document", "backup.tar.gz", fullArchive[:64], types.TypeDatabase, true},
		{"unsupported extension", "backup.zip", dbArchive[:64], types.TypeDatabase, true},
		{"plain text body", "backup.json.gz", []byte("hello world"), types.TypeDatabase, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckStructure(tc.filename, tc.head, tc.declaredType)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
