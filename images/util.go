package images

import (
	"crypto/md5"
	"fmt"
)

// Checksum generates a deterministic checksum for an image buffer, used to verify that
// pass-through output is byte-identical to its input.
//
// Arguments:
// - img: The image to compute the checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string.
//
// Example:
//
// ```go
//
//	checksum := Checksum(frame)
//	fmt.Printf("Frame checksum: %s\n", checksum)
//
// ```
func Checksum(img *Image) string {
	if img == nil || len(img.Data) == 0 {
		return "empty"
	}

	hash := md5.New()
	fmt.Fprintf(hash, "%dx%d:", img.Width, img.Height)
	hash.Write(img.Data)
	return fmt.Sprintf("%x", hash.Sum(nil))
}
