package dump

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// maxEntityFrame caps a single decoded entity frame.
const maxEntityFrame = 64 << 20

// Load rehydrates a bundle directory into a Capture for inspection tooling.
func Load(dir string) (Capture, error) {
	if dir == "" {
		return Capture{}, fmt.Errorf("dump directory must be provided")
	}
	header, err := ReadHeader(filepath.Join(dir, headerName))
	if err != nil {
		return Capture{}, fmt.Errorf("read header: %w", err)
	}
	manifest, err := readManifest(filepath.Join(dir, header.FilePointer))
	if err != nil {
		return Capture{}, err
	}

	capture := Capture{
		SessionID: header.SessionID,
		Tick:      header.Tick,
		Time:      header.Time,
		Preset:    header.Preset,
		Direction: header.Direction,
	}
	//1.- Decode entity frames in the order they were written.
	if capture.Entities, err = readEntities(filepath.Join(dir, manifest.EntitiesPath)); err != nil {
		return Capture{}, err
	}
	//2.- Stream the event log line by line.
	if capture.Events, err = readEvents(filepath.Join(dir, manifest.EventsPath)); err != nil {
		return Capture{}, err
	}
	if len(capture.Entities) != header.Entities {
		return Capture{}, fmt.Errorf("header lists %d entities, bundle holds %d", header.Entities, len(capture.Entities))
	}
	return capture, nil
}

func readManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	if manifest.EventsPath == "" || manifest.EntitiesPath == "" {
		return Manifest{}, fmt.Errorf("manifest missing artefact paths")
	}
	return manifest, nil
}

func readEntities(path string) ([]EntityHistory, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	decoder, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer decoder.Close()

	var entities []EntityHistory
	prefix := make([]byte, entityFrameHeader)
	for {
		if _, err := io.ReadFull(decoder, prefix); err != nil {
			if errors.Is(err, io.EOF) {
				return entities, nil
			}
			return nil, fmt.Errorf("read entity frame: %w", err)
		}
		index := binary.LittleEndian.Uint32(prefix[0:4])
		count := binary.LittleEndian.Uint32(prefix[4:8])
		size := binary.LittleEndian.Uint32(prefix[8:12])
		if int(index) != len(entities) {
			return nil, fmt.Errorf("entity frame %d out of order", index)
		}
		if size > maxEntityFrame {
			return nil, fmt.Errorf("entity frame %d too large: %d bytes", index, size)
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(decoder, payload); err != nil {
			return nil, fmt.Errorf("read entity payload %d: %w", index, err)
		}
		var entity EntityHistory
		if err := json.Unmarshal(payload, &entity); err != nil {
			return nil, fmt.Errorf("decode entity %d: %w", index, err)
		}
		if len(entity.Snapshots) != int(count) {
			return nil, fmt.Errorf("entity %d: prefix lists %d snapshots, payload holds %d", index, count, len(entity.Snapshots))
		}
		entities = append(entities, entity)
	}
}

func readEvents(path string) ([]Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []Event
	scanner := bufio.NewScanner(snappy.NewReader(file))
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("decode event %d: %w", len(events), err)
		}
		events = append(events, event)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}
