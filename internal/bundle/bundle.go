// Package bundle assembles and validates Publisher Portal bundles.
//
// A bundle is a zip of a Maven repository layout (group/artifact/version/files).
package bundle

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/klauspost/compress/zip"

	"centralpublisher/internal/apperrors"
	"centralpublisher/internal/portal"
)

// Excluded reports whether a staging repository file is left out of bundles.
// Repository metadata and its checksums/signatures are generated by Central.
func Excluded(name string) bool {
	return strings.HasPrefix(path.Base(name), "maven-metadata.xml")
}

// Open validates an existing bundle file for upload.
func Open(bundlePath string) (portal.Bundle, error) {
	if bundlePath == "" {
		return portal.Bundle{}, apperrors.Validation("bundle", "bundle path is required")
	}
	info, err := os.Stat(bundlePath)
	if err != nil {
		return portal.Bundle{}, apperrors.Validation("bundle", fmt.Sprintf("bundle not found: %v", err))
	}
	if !info.Mode().IsRegular() {
		return portal.Bundle{}, apperrors.Validation("bundle", fmt.Sprintf("bundle %s is not a regular file", bundlePath))
	}

	r, err := zip.OpenReader(bundlePath)
	if err != nil {
		return portal.Bundle{}, apperrors.Validation("bundle", fmt.Sprintf("bundle %s is not a readable zip archive: %v", bundlePath, err))
	}
	entries := len(r.File)
	r.Close()
	if entries == 0 {
		return portal.Bundle{}, apperrors.Validation("bundle", fmt.Sprintf("bundle %s is empty", bundlePath))
	}

	return portal.Bundle{
		Path: bundlePath,
		Name: filepath.Base(bundlePath),
		Size: info.Size(),
	}, nil
}

// Create zips the staging repository at srcDir into destPath and returns the
// number of files written. Entries are relative to srcDir, use forward
// slashes and are written in lexical order.
func Create(srcDir, destPath string) (int, error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return 0, apperrors.Validation("stagingDir", fmt.Sprintf("staging directory not found: %v", err))
	}
	if !info.IsDir() {
		return 0, apperrors.Validation("stagingDir", fmt.Sprintf("%s is not a directory", srcDir))
	}

	files, err := collectFiles(srcDir)
	if err != nil {
		return 0, apperrors.Internal("scan staging directory", err)
	}
	if len(files) == 0 {
		return 0, apperrors.Validation("stagingDir", fmt.Sprintf("staging directory %s contains no files", srcDir))
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return 0, apperrors.Internal("create bundle directory", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(destPath), ".bundle-*.zip")
	if err != nil {
		return 0, apperrors.Internal("create bundle file", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeZip(tmp, srcDir, files); err != nil {
		tmp.Close()
		return 0, apperrors.Internal("write bundle", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, apperrors.Internal("write bundle", err)
	}
	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return 0, apperrors.Internal("write bundle", err)
	}

	slog.Debug("Created bundle", "path", destPath, "files", len(files))
	return len(files), nil
}

// collectFiles returns slash-separated paths of the regular files to bundle.
func collectFiles(srcDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(srcDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if Excluded(rel) {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	slices.Sort(files)
	return files, err
}

func writeZip(w io.Writer, srcDir string, files []string) error {
	zw := zip.NewWriter(w)

	for _, rel := range files {
		if err := addFile(zw, srcDir, rel); err != nil {
			return err
		}
	}
	return zw.Close()
}

func addFile(zw *zip.Writer, srcDir, rel string) error {
	file, err := os.Open(filepath.Join(srcDir, filepath.FromSlash(rel)))
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat file: %w", err)
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = rel
	header.Method = zip.Deflate

	dst, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to write zip header: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		return fmt.Errorf("failed to write file to zip: %w", err)
	}
	return nil
}
