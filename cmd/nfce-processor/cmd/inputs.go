package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// input is either a file read from disk or a literal key/URL argument
type input struct {
	Name string
	Data []byte
	File bool
}

func collectInputs(args []string) ([]input, error) {
	var inputs []input

	for _, arg := range args {
		files, err := collectFiles(arg)
		if err != nil {
			return nil, err
		}
		if files == nil {
			inputs = append(inputs, input{Name: arg, Data: []byte(arg)})
			continue
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return nil, fmt.Errorf("failed to read file: %w", err)
			}
			inputs = append(inputs, input{Name: f, Data: data, File: true})
		}
	}

	return inputs, nil
}

// collectFiles expands a glob, directory or file path. It returns nil when
// arg names nothing on disk.
func collectFiles(arg string) ([]string, error) {
	// a malformed pattern is read as literal text
	matches, _ := filepath.Glob(arg)
	if len(matches) == 0 {
		if _, err := os.Stat(arg); err != nil {
			return nil, nil
		}
		matches = []string{arg}
	}

	files := []string{}
	for _, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			// explicitly named files are taken whatever their extension
			if len(matches) == 1 || isSupportedFile(match) {
				files = append(files, match)
			}
			continue
		}
		err = filepath.Walk(match, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && isSupportedFile(path) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func isSupportedFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".heic", ".heif", ".pdf", ".xml", ".html", ".htm", ".txt":
		return true
	default:
		return false
	}
}
