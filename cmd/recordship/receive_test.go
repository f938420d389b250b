package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/bft-labs/recordship/internal/sitetosite"
)

func TestWriteFlowFile(t *testing.T) {
	dir := t.TempDir()
	f := sitetosite.FlowFile{
		Attributes: map[string]string{
			"uuid":      "0b9e5d3c-7f3a-4c8e-9d57-8f1c3c1e2a10",
			"mime.type": "text/csv",
			"filename":  "metrics.csv",
		},
		Content: []byte("a,b\n1,2\n"),
	}

	name, err := writeFlowFile(dir, f)
	if err != nil {
		t.Fatalf("writeFlowFile() error = %v", err)
	}
	if name != "0b9e5d3c-7f3a-4c8e-9d57-8f1c3c1e2a10.csv" {
		t.Errorf("name = %q", name)
	}

	content, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "a,b\n1,2\n" {
		t.Errorf("content = %q", content)
	}

	raw, err := os.ReadFile(filepath.Join(dir, "0b9e5d3c-7f3a-4c8e-9d57-8f1c3c1e2a10.attributes.json"))
	if err != nil {
		t.Fatal(err)
	}
	var attrs map[string]string
	if err := json.Unmarshal(raw, &attrs); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(attrs, f.Attributes) {
		t.Errorf("attributes = %v, want %v", attrs, f.Attributes)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("dir has %d entries, want 2 (no leftover .tmp)", len(entries))
	}
}

func TestWriteFlowFile_GeneratesIDWhenMissing(t *testing.T) {
	dir := t.TempDir()
	name, err := writeFlowFile(dir, sitetosite.FlowFile{
		Attributes: map[string]string{"uuid": "../../escape"},
		Content:    []byte("x"),
	})
	if err != nil {
		t.Fatalf("writeFlowFile() error = %v", err)
	}
	if filepath.Dir(filepath.Join(dir, name)) != dir {
		t.Errorf("file escaped out dir: %q", name)
	}
	if filepath.Ext(name) != ".bin" {
		t.Errorf("ext = %q, want .bin", filepath.Ext(name))
	}
}

func TestSplitPorts(t *testing.T) {
	got := splitPorts(" a, b ,,c")
	if !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Errorf("splitPorts() = %v", got)
	}
	if splitPorts("") != nil {
		t.Error("splitPorts(\"\") should be nil")
	}
}

func TestLevelOrInfo(t *testing.T) {
	if levelOrInfo("warn").String() != "warn" {
		t.Error("warn not parsed")
	}
	if levelOrInfo("bogus").String() != "info" {
		t.Error("bogus should fall back to info")
	}
}
