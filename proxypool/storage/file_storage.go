package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	herrors "proxyharvest/internal/shared/errors"
	"proxyharvest/internal/shared/logger"
)

const fileSuffix = ".cache.json"

// FileBackend 实现了 Backend 接口, 每个 key 对应目录下的一个 JSON 文件。
// 写入先落到临时文件再 rename, 读者永远看不到写了一半的文件。
type FileBackend struct {
	dir string
}

// NewFileBackend creates the cache directory if needed and checks that it is writable.
// Failure here is a configuration error, reported as ErrCacheStorage.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, herrors.CacheStorage("cannot create cache directory ", dir).Base(err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return nil, herrors.CacheStorage("cache directory ", dir, " is not writable").Base(err)
	}
	probe.Close()
	os.Remove(probe.Name())

	return &FileBackend{dir: dir}, nil
}

func (fb *FileBackend) path(key string) string {
	return filepath.Join(fb.dir, key+fileSuffix)
}

// Load 读取一个条目。文件不存在视为未命中; 文件损坏时删除并视为未命中。
func (fb *FileBackend) Load(key string) (Entry, bool, error) {
	data, err := os.ReadFile(fb.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return Entry{}, false, nil
		}
		return Entry{}, false, herrors.CacheStorage("read entry ", key).Base(err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		l := logger.WithComponent("ProxyPool/Storage")
		l.Warn().Err(err).Str("key", key).Msg("Discarding malformed cache entry.")
		if err := fb.Delete(key); err != nil {
			return Entry{}, false, err
		}
		return Entry{}, false, nil
	}
	return e, true, nil
}

// Store 将条目持久化到文件。
func (fb *FileBackend) Store(key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return herrors.CacheStorage("marshal entry ", key).Base(err)
	}

	tmp, err := os.CreateTemp(fb.dir, "."+key+".tmp-*")
	if err != nil {
		return herrors.CacheStorage("create temp file for ", key).Base(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return herrors.CacheStorage("write entry ", key).Base(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return herrors.CacheStorage("close entry ", key).Base(err)
	}
	if err := os.Rename(tmpName, fb.path(key)); err != nil {
		os.Remove(tmpName)
		return herrors.CacheStorage("commit entry ", key).Base(err)
	}
	return nil
}

// Delete removes an entry; a missing file is not an error.
func (fb *FileBackend) Delete(key string) error {
	if err := os.Remove(fb.path(key)); err != nil && !os.IsNotExist(err) {
		return herrors.CacheStorage("delete entry ", key).Base(err)
	}
	return nil
}

// Keys lists the keys of all entries currently on disk.
func (fb *FileBackend) Keys() ([]string, error) {
	dirEntries, err := os.ReadDir(fb.dir)
	if err != nil {
		return nil, herrors.CacheStorage("list ", fb.dir).Base(err)
	}

	keys := make([]string, 0, len(dirEntries))
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileSuffix) {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, fileSuffix))
	}
	return keys, nil
}
