// Package persistence writes archival records to disk as gzipped JSON
// files, laid out by datatype and date.
package persistence

import (
	"compress/gzip"
	"encoding/json"
	"os"
	"path"
	"time"
)

// DataFile describes a written archival file.
type DataFile struct {
	// Prefix is the data directory the file was written under.
	Prefix string
	// Datatype is the record type (e.g. "offload", "sweep").
	Datatype string
	// Subtest qualifies the datatype (e.g. the pipeline name).
	Subtest string
	// UUID identifies the measurement the record belongs to.
	UUID string
	// Path is the full path of the written file.
	Path string
	// Size is the size of the marshaled JSON payload, before compression.
	Size int
}

// WriteDataFile serializes result as gzipped JSON to
// <prefix>/<datatype>/<yyyy/mm/dd>/<datatype>-<subtest>-<timestamp>.<uuid>.json.gz
// and returns the written file's metadata.
func WriteDataFile(prefix, datatype, subtest, uuid string, result interface{}) (*DataFile, error) {
	timestamp := time.Now()
	dir := path.Join(prefix, datatype, timestamp.Format("2006/01/02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	filepath := path.Join(dir, datatype+"-"+subtest+"-"+
		timestamp.Format("20060102T150405.000000000Z")+"."+uuid+".json.gz")

	data, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}

	fp, err := os.OpenFile(filepath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, err
	}
	writer, err := gzip.NewWriterLevel(fp, gzip.BestSpeed)
	if err != nil {
		fp.Close()
		return nil, err
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		fp.Close()
		return nil, err
	}
	if err := writer.Close(); err != nil {
		fp.Close()
		return nil, err
	}
	if err := fp.Close(); err != nil {
		return nil, err
	}

	return &DataFile{
		Prefix:   prefix,
		Datatype: datatype,
		Subtest:  subtest,
		UUID:     uuid,
		Path:     filepath,
		Size:     len(data),
	}, nil
}
