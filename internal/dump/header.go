package dump

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion tracks the schema version for bundle headers.
const HeaderSchemaVersion = 1

// Header summarises a bundle so catalogue tooling need not decompress it.
type Header struct {
	SchemaVersion int     `json:"schema_version"`
	SessionID     string  `json:"session_id"`
	Tick          uint64  `json:"tick"`
	Time          float64 `json:"time"`
	Preset        string  `json:"preset"`
	Direction     string  `json:"direction"`
	Entities      int     `json:"entities"`
	Snapshots     int     `json:"snapshots"`
	Events        int     `json:"events"`
	FilePointer   string  `json:"file_pointer"`
}

// Validate ensures the header can locate its bundle.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader persists header as indented JSON at path.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(payload, '\n'), 0o644)
}

// ReadHeader loads and validates a header from disk.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("decode header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, err
	}
	return header, nil
}
