package audio

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// MD5File returns the hex md5 of the file and its size in bytes.
func MD5File(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := md5.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}
