package persistence_test

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/splitbench/splitbench/internal/persistence"
)

// A struct that can be marshalled to JSON.
type MarshallableStruct struct {
	Test string
}

func TestWriteDataFile(t *testing.T) {
	prefix := t.TempDir()
	testdata := MarshallableStruct{Test: "foo"}
	df, err := persistence.WriteDataFile(prefix, "type", "subtest", "fake-uuid", testdata)
	if err != nil {
		t.Fatalf("cannot create test datafile: %v", err)
	}

	if df.Prefix != prefix || df.Datatype != "type" ||
		df.Subtest != "subtest" || df.UUID != "fake-uuid" {
		t.Fatalf("invalid field values in DataFile")
	}

	// Check the generated path.
	wantPrefix := fmt.Sprintf("%s/type/%s/type-subtest-", prefix,
		time.Now().Format("2006/01/02"))
	if !strings.HasPrefix(df.Path, wantPrefix) ||
		!strings.HasSuffix(df.Path, "fake-uuid.json.gz") {
		t.Errorf("invalid output path: %s", df.Path)
	}

	// Check the file contents.
	fp, err := os.Open(df.Path)
	if err != nil {
		t.Fatalf("error while opening data file: %v", err)
	}
	defer fp.Close()
	gz, err := gzip.NewReader(fp)
	if err != nil {
		t.Fatalf("data file is not gzip: %v", err)
	}
	content, err := io.ReadAll(gz)
	if err != nil {
		t.Fatalf("error while reading file content: %v", err)
	}
	if string(content) != `{"Test":"foo"}` {
		t.Errorf("unexpected file content: %s", string(content))
	}
	if df.Size != len(content) {
		t.Errorf("invalid Size: %d (should be %d)", df.Size, len(content))
	}
}

func TestWriteDataFileUnmarshallable(t *testing.T) {
	if _, err := persistence.WriteDataFile(t.TempDir(), "type", "subtest", "uuid",
		make(chan int)); err == nil {
		t.Fatal("WriteDataFile() accepted an unmarshallable result")
	}
}
