package hasher

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// HashAlgorithms is a list of supported hashing algorithms.
var HashAlgorithms = []string{"md5", "sha1", "sha256", "sha512"}

// IsValidHashAlgo checks if the provided algorithm string is supported.
func IsValidHashAlgo(algo string) bool {
	_, err := newHash(algo)
	return err == nil
}

func newHash(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash algorithm: %s", algo)
	}
}

// GenerateHash calculates the hex digest of a file using the specified algorithm.
func GenerateHash(filePath, algo string) (string, error) {
	h, err := newHash(algo)
	if err != nil {
		return "", err
	}
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(h, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksumFile writes "<digest>  <name>" next to filePath, in the format sha256sum -c reads.
// It returns the path of the checksum file.
func WriteChecksumFile(filePath, algo string) (string, error) {
	digest, err := GenerateHash(filePath, algo)
	if err != nil {
		return "", err
	}
	sumPath := filePath + "." + strings.ToLower(algo)
	line := fmt.Sprintf("%s  %s\n", digest, filepath.Base(filePath))
	if err := os.WriteFile(sumPath, []byte(line), 0o644); err != nil {
		return "", fmt.Errorf("failed to write checksum file: %w", err)
	}
	return sumPath, nil
}
