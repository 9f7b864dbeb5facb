package extraction

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// ContainerExt is the only archive format this extractor consumes.
const ContainerExt = ".zip"

// ZIP file signatures (magic bytes)
var zipSignatures = [][]byte{
	{0x50, 0x4B, 0x03, 0x04}, // Standard ZIP
	{0x50, 0x4B, 0x05, 0x06}, // Empty ZIP
	{0x50, 0x4B, 0x07, 0x08}, // Spanned ZIP
}

// IsContainer reports whether the file at path is a nested container:
// the extension must match and the content must carry a valid ZIP
// signature.
func IsContainer(path string) (bool, error) {
	lower := strings.ToLower(filepath.Base(path))

	if !strings.HasSuffix(lower, ContainerExt) {
		return false, nil
	}

	return hasZipSignature(path)
}

// hasZipSignature checks if the file has a valid ZIP magic byte signature
func hasZipSignature(path string) (bool, error) {
	file, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	header := make([]byte, 4)
	n, err := file.Read(header)
	if err != nil {
		return false, nil
	}

	if n < 4 {
		return false, nil
	}

	for _, sig := range zipSignatures {
		if bytes.Equal(header, sig) {
			return true, nil
		}
	}

	return false, nil
}
