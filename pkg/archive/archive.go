// Package archive implements the backup archive codec. Database snapshots
// are serialized as a gzip-compressed JSON document holding an ordered
// sequence of field-maps per logical model. Media snapshots use a tar
// container with a directory per collection. Full archives interleave both
// inside the tar container.
package archive

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"

	"github.com/galenelijah/USC-PIS-sub001/pkg/media"
	"github.com/galenelijah/USC-PIS-sub001/pkg/metadata/types"
	"github.com/galenelijah/USC-PIS-sub001/pkg/records"
)

// ErrMalformedArchive indicates the archive container does not decode or
// does not match the declared backup type.
var ErrMalformedArchive = errors.New("malformed archive")

// FormatVersion is the current archive format version.
const FormatVersion = 1

const (
	manifestEntry = "manifest.json"
	databaseEntry = "database.json"
	mediaPrefix   = "media/"
)

// Manifest declares the archive's own type and cardinality, allowing
// verification without reference to external state.
type Manifest struct {
	FormatVersion int                `json:"formatVersion"`
	BackupType    types.BackupType   `json:"backupType"`
	CreatedAt     time.Time          `json:"createdAt"`
	RecordCounts  map[string]int     `json:"recordCounts"`
	TotalRecords  int                `json:"totalRecords"`
	FileCount     int                `json:"fileCount"`
}

// MediaEntry is one media file carried inside an archive.
type MediaEntry struct {
	File media.File
	Data []byte
}

// databaseDocument is the JSON payload for record data.
type databaseDocument struct {
	Manifest Manifest                    `json:"manifest"`
	Models   map[string][]records.Record `json:"models"`
}

// buildManifest computes the declared counts for a snapshot.
func buildManifest(backupType types.BackupType, snapshot records.Snapshot, mediaFiles []MediaEntry) Manifest {
	manifest := Manifest{
		FormatVersion: FormatVersion,
		BackupType:    backupType,
		CreatedAt:     time.Now().UTC(),
		RecordCounts:  make(map[string]int),
		FileCount:     len(mediaFiles),
	}
	for model, recs := range snapshot {
		manifest.RecordCounts[model] = len(recs)
		manifest.TotalRecords += len(recs)
	}
	return manifest
}

// Encode serializes a snapshot of records and media files into archive
// bytes. Inputs are never mutated.
func Encode(backupType types.BackupType, snapshot records.Snapshot, mediaFiles []MediaEntry) ([]byte, Manifest, error) {
	manifest := buildManifest(backupType, snapshot, mediaFiles)

	switch backupType {
	case types.TypeDatabase:
		data, err := encodeDatabase(manifest, snapshot)
		return data, manifest, err
	case types.TypeMedia, types.TypeFull:
		data, err := encodeContainer(manifest, snapshot, mediaFiles)
		return data, manifest, err
	default:
		return nil, Manifest{}, errors.Errorf("unsupported backup type: %s", backupType)
	}
}

// encodeDatabase produces a gzip-compressed JSON document.
func encodeDatabase(manifest Manifest, snapshot records.Snapshot) ([]byte, error) {
	doc := databaseDocument{
		Manifest: manifest,
		Models:   snapshot,
	}
	if doc.Models == nil {
		doc.Models = make(map[string][]records.Record)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		return nil, errors.Wrap(err, "failed to encode database document")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish compression")
	}
	return buf.Bytes(), nil
}

// encodeContainer produces a gzip-compressed tar archive with manifest,
// optional database payload, and media files under a directory per
// collection.
func encodeContainer(manifest Manifest, snapshot records.Snapshot, mediaFiles []MediaEntry) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal manifest")
	}
	if err := writeTarEntry(tw, manifestEntry, manifestData, manifest.CreatedAt); err != nil {
		return nil, err
	}

	if manifest.BackupType == types.TypeFull {
		models := snapshot
		if models == nil {
			models = make(records.Snapshot)
		}
		dbData, err := json.Marshal(databaseDocument{Manifest: manifest, Models: models})
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal database payload")
		}
		if err := writeTarEntry(tw, databaseEntry, dbData, manifest.CreatedAt); err != nil {
			return nil, err
		}
	}

	for _, entry := range mediaFiles {
		name := mediaPrefix + entry.File.Collection + "/" + entry.File.Name
		if err := writeTarEntry(tw, name, entry.Data, manifest.CreatedAt); err != nil {
			return nil, err
		}
	}

	if err := tw.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish tar archive")
	}
	if err := gz.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to finish compression")
	}
	return buf.Bytes(), nil
}

func writeTarEntry(tw *tar.Writer, name string, data []byte, modTime time.Time) error {
	header := &tar.Header{
		Name:    name,
		Mode:    0644,
		Size:    int64(len(data)),
		ModTime: modTime,
	}
	if err := tw.WriteHeader(header); err != nil {
		return errors.Wrapf(err, "failed to write tar header for %s", name)
	}
	if _, err := tw.Write(data); err != nil {
		return errors.Wrapf(err, "failed to write tar entry %s", name)
	}
	return nil
}

// Decode parses archive bytes into an in-memory representation. It rejects
// archives whose container structure does not match expectedType with
// ErrMalformedArchive. Live state is never touched.
func Decode(data []byte, expectedType types.BackupType) (records.Snapshot, []MediaEntry, Manifest, error) {
	payload, err := maybeDecompress(data)
	if err != nil {
		return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, err.Error())
	}

	if isJSONDocument(payload) {
		if expectedType != types.TypeDatabase {
			return nil, nil, Manifest{}, errors.Wrapf(ErrMalformedArchive,
				"expected a %s container but found a record document", expectedType)
		}
		return decodeDatabase(payload)
	}

	if expectedType == types.TypeDatabase {
		return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive,
			"expected a record document but found a directory container")
	}
	return decodeContainer(payload, expectedType)
}

// decodeDatabase parses a record document payload.
func decodeDatabase(payload []byte) (records.Snapshot, []MediaEntry, Manifest, error) {
	var doc databaseDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, err.Error())
	}
	if doc.Manifest.FormatVersion == 0 {
		return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, "missing manifest")
	}
	if doc.Manifest.BackupType != types.TypeDatabase {
		return nil, nil, Manifest{}, errors.Wrapf(ErrMalformedArchive,
			"record document declares type %s", doc.Manifest.BackupType)
	}
	if doc.Models == nil {
		doc.Models = make(records.Snapshot)
	}
	return doc.Models, nil, doc.Manifest, nil
}

// decodeContainer parses a tar container payload.
func decodeContainer(payload []byte, expectedType types.BackupType) (records.Snapshot, []MediaEntry, Manifest, error) {
	tr := tar.NewReader(bytes.NewReader(payload))

	var manifest Manifest
	var haveManifest bool
	var snapshot records.Snapshot
	var mediaFiles []MediaEntry

	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, err.Error())
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, err.Error())
		}

		name := path.Clean(header.Name)
		switch {
		case name == manifestEntry:
			if err := json.Unmarshal(data, &manifest); err != nil {
				return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, "bad manifest: "+err.Error())
			}
			haveManifest = true

		case name == databaseEntry:
			var doc databaseDocument
			if err := json.Unmarshal(data, &doc); err != nil {
				return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, "bad database payload: "+err.Error())
			}
			snapshot = doc.Models

		case strings.HasPrefix(name, mediaPrefix):
			rel := strings.TrimPrefix(name, mediaPrefix)
			parts := strings.SplitN(rel, "/", 2)
			if len(parts) != 2 {
				return nil, nil, Manifest{}, errors.Wrapf(ErrMalformedArchive,
					"media entry %s is not under a collection directory", name)
			}
			mediaFiles = append(mediaFiles, MediaEntry{
				File: media.File{Collection: parts[0], Name: parts[1]},
				Data: data,
			})
		}
	}

	if !haveManifest {
		return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive, "missing manifest")
	}
	if manifest.BackupType != expectedType {
		return nil, nil, Manifest{}, errors.Wrapf(ErrMalformedArchive,
			"archive declares type %s, expected %s", manifest.BackupType, expectedType)
	}
	if manifest.BackupType == types.TypeMedia && snapshot != nil {
		return nil, nil, Manifest{}, errors.Wrap(ErrMalformedArchive,
			"media archive contains a database payload")
	}
	if snapshot == nil {
		snapshot = make(records.Snapshot)
	}

	return snapshot, mediaFiles, manifest, nil
}

// maybeDecompress transparently gunzips the payload when it carries the gzip
// magic; plain payloads pass through.
func maybeDecompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		return data, nil
	}
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}

// isJSONDocument reports whether the decompressed payload is a record
// document rather than a tar container.
func isJSONDocument(payload []byte) bool {
	for _, b := range payload {
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}

// CheckStructure performs a fast structural sanity check of an uploaded file
// against its declared type without decoding the full archive: file name
// extension and container magic only.
func CheckStructure(filename string, head []byte, declaredType types.BackupType) error {
	lower := strings.ToLower(filename)

	switch declaredType {
	case types.TypeDatabase:
		if !strings.HasSuffix(lower, ".json") && !strings.HasSuffix(lower, ".json.gz") {
			return errors.Errorf("file %s does not look like a record document (.json or .json.gz)", filename)
		}
	case types.TypeMedia, types.TypeFull:
		if !strings.HasSuffix(lower, ".tar.gz") && !strings.HasSuffix(lower, ".tgz") && !strings.HasSuffix(lower, ".tar") {
			return errors.Errorf("file %s does not look like a directory archive (.tar.gz)", filename)
		}
	default:
		return errors.Errorf("unsupported backup type: %s", declaredType)
	}

	if len(head) == 0 {
		return errors.New("file is empty")
	}
	gzipped := len(head) >= 2 && head[0] == 0x1f && head[1] == 0x8b
	switch declaredType {
	case types.TypeDatabase:
		if !gzipped && !isJSONDocument(head) {
			return errors.New("content is neither gzip nor a JSON document")
		}
	default:
		if !gzipped && !strings.HasSuffix(strings.ToLower(filename), ".tar") {
			return errors.New("content is not a gzip-compressed archive")
		}
	}

	return nil
}
