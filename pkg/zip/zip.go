// Package zip bundles fitting artifacts into a single download.
package zip

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

type Asset struct {
	Filename string
	MIME     string
	Data     []byte
	Modified time.Time
}

// Write streams assets into a zip archive on w. Repeated filenames get a
// numeric suffix so no entry is shadowed.
func Write(w io.Writer, assets []Asset) error {
	zw := zip.NewWriter(w)
	seen := make(map[string]int, len(assets))
	for _, asset := range assets {
		name := uniqueName(seen, asset.Filename)
		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: asset.Modified}
		if isCompressed(asset.MIME) {
			header.Method = zip.Store
		}
		fw, err := zw.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("zip: create %s: %w", name, err)
		}
		if _, err := fw.Write(asset.Data); err != nil {
			return fmt.Errorf("zip: write %s: %w", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("zip: close: %w", err)
	}
	return nil
}

// ArchiveAssets returns the archive bytes.
func ArchiveAssets(assets []Asset) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := Write(buf, assets); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func uniqueName(seen map[string]int, name string) string {
	name = strings.TrimLeft(path.Clean("/"+strings.ReplaceAll(name, "\\", "/")), "/")
	if name == "" {
		name = "asset"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	ext := path.Ext(name)
	return fmt.Sprintf("%s-%d%s", strings.TrimSuffix(name, ext), n+1, ext)
}

// isCompressed reports media that deflate cannot shrink.
func isCompressed(mime string) bool {
	mime = strings.ToLower(mime)
	return strings.HasPrefix(mime, "image/") || strings.HasPrefix(mime, "video/")
}
