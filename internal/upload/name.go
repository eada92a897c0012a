package upload

import (
	"crypto/rand"
	"math/big"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	suffixLength = 8
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// StorageName builds "{unix}_{suffix}.{ext}"; the dot is omitted when ext is empty.
func StorageName(now time.Time, suffix, ext string) string {
	name := strconv.FormatInt(now.Unix(), 10) + "_" + suffix
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// ClientExtension returns the extension the client declared in filename, without the dot.
// Anything other than ASCII letters and digits is discarded so the name stays flat.
func ClientExtension(filename string) string {
	ext := strings.TrimPrefix(filepath.Ext(filepath.Base(filename)), ".")
	for _, r := range ext {
		if !strings.ContainsRune(alphanumeric, r) {
			return ""
		}
	}
	return ext
}

// RandomSuffix returns n characters drawn uniformly from [A-Za-z0-9].
func RandomSuffix(n int) (string, error) {
	max := big.NewInt(int64(len(alphanumeric)))
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(alphanumeric[idx.Int64()])
	}
	return sb.String(), nil
}
