package downloader

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	exif "github.com/dsoprea/go-exif/v3"
)

// maxExifScanSize limits how much of an image is read when looking for EXIF data.
const maxExifScanSize = 5 * 1024 * 1024

// exifExtensions lists the file types that commonly carry EXIF metadata.
var exifExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".heic": true,
}

// exifKeys lists the EXIF tags copied into the metadata map.
var exifKeys = map[string]bool{
	"Make":             true,
	"Model":            true,
	"LensModel":        true,
	"Software":         true,
	"DateTime":         true,
	"DateTimeOriginal": true,
	"Artist":           true,
}

// ExtractExif reads the file at path and returns selected EXIF tags.
// GPS data is reported only as GPS=present. It returns nil without error
// when the file type is not EXIF-capable or carries no EXIF block.
func ExtractExif(path string) (map[string]string, error) {
	if !exifExtensions[strings.ToLower(filepath.Ext(path))] {
		return nil, nil
	}

	f, err := os.Open(path) //nolint:gosec // path is built from the output directory
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxExifScanSize))
	if err != nil {
		return nil, err
	}
	return exifFromBytes(data)
}

func exifFromBytes(data []byte) (map[string]string, error) {
	rawExif, err := exif.SearchAndExtractExif(data)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to locate EXIF data: %w", err)
	}

	entries, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse EXIF data: %w", err)
	}

	meta := make(map[string]string)
	for _, entry := range entries {
		switch {
		case exifKeys[entry.TagName]:
			if v := strings.TrimSpace(entry.Formatted); v != "" {
				meta[entry.TagName] = v
			}
		case strings.HasPrefix(entry.TagName, "GPS") && entry.TagName != "GPSVersionID":
			meta["GPS"] = "present"
		}
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}
