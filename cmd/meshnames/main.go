package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/zeusync/regionstream/internal/core/observability/log"
	"github.com/zeusync/regionstream/internal/manifest"
)

func main() {
	manifestPath := flag.String("manifest", "", "scene manifest XML to rewrite in place")
	meshDir := flag.String("meshes", "", "directory of mesh files to rename (optional)")
	namesPath := flag.String("names", "meshnames.yaml", "YAML name table")
	flag.Parse()

	logger, err := log.New(log.Config{Level: log.LevelInfo, Encoding: "console"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error creating logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *manifestPath == "" {
		fmt.Fprintln(os.Stderr, "usage: meshnames -manifest scene.xml [-meshes dir] [-names meshnames.yaml]")
		os.Exit(2)
	}

	table, err := manifest.LoadTable(*namesPath)
	if err != nil {
		logger.Error("Failed to load name table", log.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}

	if _, err = manifest.Run(*manifestPath, *meshDir, table, logger); err != nil {
		logger.Error("Transliteration failed", log.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}
