package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"driftpursuit/rewind/internal/dump"
	dumpinspect "driftpursuit/rewind/tools/dump_inspect"
)

func main() {
	path := flag.String("path", "", "Path to a history dump directory")
	full := flag.Bool("full", false, "Include every snapshot and event, not only the summary")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "path flag is required")
		os.Exit(1)
	}

	capture, summary, err := dumpinspect.Inspect(*path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(2)
	}

	payload := struct {
		Summary dumpinspect.Summary `json:"summary"`
		Capture *dump.Capture       `json:"capture,omitempty"`
	}{Summary: summary}
	if *full {
		payload.Capture = &capture
	}

	//1.- Render as JSON so callers can pipe the output elsewhere.
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(payload); err != nil {
		fmt.Fprintln(os.Stderr, "encode error:", err)
		os.Exit(3)
	}
}
