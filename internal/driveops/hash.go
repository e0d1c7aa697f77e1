package driveops

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/tonimelisma/onedrive-fs/pkg/quickxorhash"
)

// HashReader drains r and returns the base64 QuickXorHash of what it read,
// the form Graph reports in file.hashes, along with the byte count.
func HashReader(r io.Reader) (string, int64, error) {
	h := quickxorhash.New()

	n, err := io.Copy(h, r)
	if err != nil {
		return "", n, err
	}

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), n, nil
}

// ComputeQuickXorHash hashes the local file at fsPath.
func ComputeQuickXorHash(fsPath string) (string, error) {
	f, err := os.Open(fsPath)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", fsPath, err)
	}
	defer f.Close()

	digest, _, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", fsPath, err)
	}

	return digest, nil
}
