// Package deploymentid persists deployment ids so an interrupted run can be resumed.
package deploymentid

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"centralpublisher/internal/apperrors"
)

// DefaultFile is the file name used when no path is configured.
const DefaultFile = "deployment-id.txt"

// Write stores the raw deployment id at path, creating parent directories.
// The file is replaced atomically so readers never see a partial id.
func Write(path, deploymentID string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apperrors.Internal("create deployment id directory", err)
	}

	tmp, err := os.CreateTemp(dir, ".deployment-id-*")
	if err != nil {
		return apperrors.Internal("write deployment id", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(deploymentID); err != nil {
		tmp.Close()
		return apperrors.Internal("write deployment id", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.Internal("write deployment id", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return apperrors.Internal("write deployment id", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return apperrors.Internal("write deployment id", err)
	}

	slog.Debug("Wrote deployment id", "path", path, "deploymentId", deploymentID)
	return nil
}

// Read loads a deployment id written by Write. Surrounding whitespace is ignored.
func Read(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Validation("deploymentIdFile", fmt.Sprintf("cannot read deployment id: %v", err))
	}
	id := strings.TrimSpace(string(data))
	if id == "" {
		return "", apperrors.Validation("deploymentIdFile", fmt.Sprintf("deployment id file %s is empty", path))
	}
	return id, nil
}

// PathFor returns the id file for one of several bundles uploaded together:
// "<bundle name>.<base name>" next to base.
func PathFor(base, bundleName string) string {
	if base == "" {
		base = DefaultFile
	}
	return filepath.Join(filepath.Dir(base), bundleName+"."+filepath.Base(base))
}
