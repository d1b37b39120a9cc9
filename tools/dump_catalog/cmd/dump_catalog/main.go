package main

import (
	"flag"
	"fmt"
	"os"

	dumpcatalog "driftpursuit/rewind/tools/dump_catalog"
)

func main() {
	root := flag.String("dir", "dumps", "directory containing history dumps")
	jsonFlag := flag.Bool("json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	entries, err := dumpcatalog.List(*root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *jsonFlag {
		payload, err := dumpcatalog.MarshalEntries(entries)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(string(payload))
		return
	}

	for _, entry := range entries {
		h := entry.Header
		fmt.Printf("%s (schema %d)\n", entry.BundlePath, h.SchemaVersion)
		fmt.Printf("  session: %s tick %d at %.3fs\n", h.SessionID, h.Tick, h.Time)
		fmt.Printf("  playback: %s, %s\n", h.Direction, h.Preset)
		fmt.Printf("  contents: %d entities, %d snapshots, %d events\n", h.Entities, h.Snapshots, h.Events)
	}
}
