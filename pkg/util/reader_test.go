package util

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenFilePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	if err := os.WriteFile(path, []byte("event_id,ts\n"), 0644); err != nil {
		t.Fatal(err)
	}

	r, cleanup, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "event_id,ts\n" {
		t.Errorf("data = %q", data)
	}
}

func TestOpenFileGzip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gw := gzip.NewWriter(f)
	gw.Write([]byte("event_id,ts\n"))
	gw.Close()
	f.Close()

	r, cleanup, err := OpenFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cleanup()

	data, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "event_id,ts\n" {
		t.Errorf("data = %q", data)
	}
}

func TestBaseFormat(t *testing.T) {
	cases := map[string]string{
		"events.csv":     ".csv",
		"events.csv.gz":  ".csv",
		"events.XLSX":    ".xlsx",
		"events.xlsx.GZ": ".xlsx",
	}
	for path, want := range cases {
		if got := BaseFormat(path); got != want {
			t.Errorf("BaseFormat(%q) = %q, want %q", path, got, want)
		}
	}
}
