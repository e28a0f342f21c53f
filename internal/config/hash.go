package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name written next to the config file.
const ChecksumFile = ".checksums"

// ChecksumManifest records the expected BLAKE3 hash of each locked file,
// keyed by base name.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Lock hashes configPath and writes the manifest next to it.
func Lock(configPath string) (*ChecksumManifest, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	hash, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return nil, err
	}

	manifest := &ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      map[string]string{filepath.Base(absPath): hash},
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal checksums: %w", err)
	}
	// Restrictive permissions: the manifest is the trust anchor.
	if err := os.WriteFile(filepath.Join(filepath.Dir(absPath), ChecksumFile), data, 0600); err != nil {
		return nil, fmt.Errorf("failed to write checksums: %w", err)
	}
	return manifest, nil
}

// LoadChecksums reads the manifest from dir.
func LoadChecksums(dir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ChecksumFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checksums file not found (run 'hype config lock')")
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// Verify checks configPath against the manifest next to it.
func Verify(configPath string) error {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return err
	}
	manifest, err := LoadChecksums(filepath.Dir(absPath))
	if err != nil {
		return err
	}
	return verifyAgainst(absPath, manifest)
}

// VerifyIfLocked verifies absPath only when a manifest exists.
func VerifyIfLocked(absPath string) error {
	if _, err := os.Stat(filepath.Join(filepath.Dir(absPath), ChecksumFile)); os.IsNotExist(err) {
		return nil
	}
	manifest, err := LoadChecksums(filepath.Dir(absPath))
	if err != nil {
		return err
	}
	return verifyAgainst(absPath, manifest)
}

func verifyAgainst(absPath string, manifest *ChecksumManifest) error {
	name := filepath.Base(absPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%s has no hash in checksums (run 'hype config lock')", name)
	}
	actual, err := ComputeBlake3Hash(absPath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}
	if actual != expected {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s\n"+
			"If you edited this file intentionally, run: hype config lock", name, expected, actual)
	}
	return nil
}
