package dumpcatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"driftpursuit/rewind/internal/dump"
)

// Entry captures a bundle header alongside its resolved directory.
type Entry struct {
	HeaderPath string      `json:"header_path"`
	BundlePath string      `json:"bundle_path"`
	Header     dump.Header `json:"header"`
}

// List walks the directory tree and returns parsed bundle headers.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Walk the tree searching for bundle headers.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != "header.json" {
			return nil
		}
		header, err := dump.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		entries = append(entries, Entry{HeaderPath: path, BundlePath: filepath.Dir(path), Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.SessionID == entries[j].Header.SessionID {
			return entries[i].Header.Tick < entries[j].Header.Tick
		}
		return entries[i].Header.SessionID < entries[j].Header.SessionID
	})
	return entries, nil
}

// MarshalEntries produces a stable JSON representation for CLI output.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
