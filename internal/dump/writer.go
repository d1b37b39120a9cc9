package dump

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var sessionCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

const (
	manifestName = "manifest.json"
	headerName   = "header.json"
	eventsName   = "events.jsonl.sz"
	entitiesName = "entities.bin.zst"

	// entityFrameHeader is the fixed prefix of every entity frame: index, snapshot count, payload length.
	entityFrameHeader = 4 + 4 + 4
)

// Manifest describes the bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version      int    `json:"version"`
	CreatedAt    string `json:"created_at"`
	EventsPath   string `json:"events_path"`
	EntitiesPath string `json:"entities_path"`
}

// Writer streams one capture into a bundle directory.
type Writer struct {
	mu           sync.Mutex
	dir          string
	now          func() time.Time
	eventFile    *os.File
	eventStream  *snappy.Writer
	entityFile   *os.File
	entityStream *zstd.Encoder
	header       Header
	closed       bool
}

// NewWriter creates a fresh bundle directory under root and opens its compressed sinks.
func NewWriter(root, sessionID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("dump root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := sessionCleaner.ReplaceAllString(sessionID, "")
	if cleaned == "" {
		cleaned = "session"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405.000Z")))

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, Manifest{}, err
	}
	if err := os.Mkdir(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	eventFile, err := os.Create(filepath.Join(path, eventsName))
	if err != nil {
		return nil, Manifest{}, err
	}
	entityFile, err := os.Create(filepath.Join(path, entitiesName))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	entityStream, err := zstd.NewWriter(entityFile)
	if err != nil {
		eventFile.Close()
		entityFile.Close()
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:      1,
		CreatedAt:    created.Format(time.RFC3339Nano),
		EventsPath:   eventsName,
		EntitiesPath: entitiesName,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err == nil {
		err = os.WriteFile(filepath.Join(path, manifestName), data, 0o644)
	}
	if err != nil {
		entityStream.Close()
		entityFile.Close()
		eventFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:          path,
		now:          clock,
		eventFile:    eventFile,
		eventStream:  snappy.NewBufferedWriter(eventFile),
		entityFile:   entityFile,
		entityStream: entityStream,
		header: Header{
			SchemaVersion: HeaderSchemaVersion,
			SessionID:     sessionID,
			FilePointer:   manifestName,
		},
	}, manifest, nil
}

// Directory exposes the directory backing the bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetSummary records the session-level fields persisted in the header on Close.
func (w *Writer) SetSummary(tick uint64, simTime float64, preset, direction string) {
	if w == nil {
		return
	}
	w.mu.Lock()
	w.header.Tick = tick
	w.header.Time = simTime
	w.header.Preset = preset
	w.header.Direction = direction
	w.mu.Unlock()
}

// AppendEvent writes one manipulation event as a JSON line to the snappy log.
func (w *Writer) AppendEvent(event Event) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	line, err := json.Marshal(event)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.header.Events++
	return nil
}

// AppendEntity writes one entity history as a length-prefixed zstd frame.
func (w *Writer) AppendEntity(entity EntityHistory) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	payload, err := json.Marshal(entity)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	//1.- Prefix each frame so readers can skip entities without decoding them.
	prefix := make([]byte, entityFrameHeader)
	binary.LittleEndian.PutUint32(prefix[0:4], uint32(w.header.Entities))
	binary.LittleEndian.PutUint32(prefix[4:8], uint32(len(entity.Snapshots)))
	binary.LittleEndian.PutUint32(prefix[8:12], uint32(len(payload)))
	if _, err := w.entityStream.Write(prefix); err != nil {
		return err
	}
	if _, err := w.entityStream.Write(payload); err != nil {
		return err
	}
	w.header.Entities++
	w.header.Snapshots += len(entity.Snapshots)
	return nil
}

// Close writes the header then flushes and releases every sink.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every flush and close, surfacing the first failure.
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	record(WriteHeader(filepath.Join(w.dir, headerName), w.header))
	record(w.eventStream.Close())
	record(w.eventFile.Close())
	record(w.entityStream.Close())
	record(w.entityFile.Close())
	return firstErr
}

// WriteCapture persists capture as a complete bundle and returns its directory.
func WriteCapture(root string, capture Capture, clock func() time.Time) (string, error) {
	writer, _, err := NewWriter(root, capture.SessionID, clock)
	if err != nil {
		return "", err
	}
	writer.SetSummary(capture.Tick, capture.Time, capture.Preset, capture.Direction)
	for _, entity := range capture.Entities {
		if err := writer.AppendEntity(entity); err != nil {
			writer.Close()
			return "", fmt.Errorf("append entity %s: %w", entity.ID, err)
		}
	}
	for _, event := range capture.Events {
		if err := writer.AppendEvent(event); err != nil {
			writer.Close()
			return "", fmt.Errorf("append event: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return "", err
	}
	return writer.Directory(), nil
}
