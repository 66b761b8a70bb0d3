package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"car-report/internal/normalize"
)

// readSources loads the given files in order, labelled by base name.
func readSources(paths []string) ([]normalize.SourceFile, error) {
	files := make([]normalize.SourceFile, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		files = append(files, normalize.SourceFile{Label: filepath.Base(p), Data: data})
	}
	return files, nil
}

// readInput reads a file, or stdin when path is "-".
func readInput(path string, stdin io.Reader) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		return string(data), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
