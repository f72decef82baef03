package pricing

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/Laisky/errors/v2"
)

// DiskCacheTTL is the default freshness window of the on-disk cache file.
const DiskCacheTTL = time.Hour

// CacheMetadata describes the provenance and freshness window of a cache file.
type CacheMetadata struct {
	Timestamp int64  `json:"timestamp"` // unix milliseconds
	SourceURL string `json:"sourceUrl"`
	TTLMs     int64  `json:"ttl"`
}

// CacheFile is the on-disk pricing cache document.
type CacheFile struct {
	Metadata CacheMetadata `json:"metadata"`
	Data     Catalog       `json:"data"`
}

// Fresh reports whether the cache is inside its freshness window at now.
func (f *CacheFile) Fresh(now time.Time) bool {
	if f == nil {
		return false
	}
	age := now.UnixMilli() - f.Metadata.Timestamp
	return age >= 0 && age < f.Metadata.TTLMs
}

// Age returns how old the cache is at now.
func (f *CacheFile) Age(now time.Time) time.Duration {
	if f == nil {
		return 0
	}
	return time.Duration(now.UnixMilli()-f.Metadata.Timestamp) * time.Millisecond
}

// loadCacheFile reads and parses the cache document. A missing file returns
// (nil, nil); a corrupt one returns an error.
func loadCacheFile(path string) (*CacheFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read pricing cache %s", path)
	}

	var file CacheFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, errors.Wrapf(err, "parse pricing cache %s", path)
	}
	if file.Data == nil {
		return nil, errors.Errorf("pricing cache %s has no data section", path)
	}
	return &file, nil
}

// saveCacheFile writes the document atomically.
func saveCacheFile(path string, file *CacheFile) error {
	raw, err := json.Marshal(file)
	if err != nil {
		return errors.Wrap(err, "marshal pricing cache")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "create pricing cache dir")
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return errors.Wrap(err, "write pricing cache temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "replace pricing cache file")
}
