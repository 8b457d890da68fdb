package util

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// WriteTextAtomic writes content through a temp file in the destination
// directory and renames it into place, so readers never observe a partially
// written rule file.
func WriteTextAtomic(path string, content string) error {
	return writeAtomic(path, ".txt", func(f *os.File) error {
		_, err := f.WriteString(content)
		return err
	})
}

// WriteJSONAtomic writes v as indented JSON with the same atomic rename
// protocol as WriteTextAtomic.
func WriteJSONAtomic(path string, v any) error {
	return writeAtomic(path, ".json", func(f *os.File) error {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	})
}

func writeAtomic(path, ext string, fill func(*os.File) error) error {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "tmp-*"+ext)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if err := fill(tmp); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename into %s: %w", path, err)
	}
	return nil
}
