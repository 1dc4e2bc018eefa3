package symcache

import (
	"fmt"
	"os"
	"path/filepath"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
	"golang.org/x/sys/unix"

	"github.com/think-cell/minidump/internal/utils"
)

// NotCached is the empty-path sentinel spec.md §4.7 specifies for a
// cache() call whose source does not exist.
const NotCached = ""

// BinaryCache is the reader's concurrency-safe local cache for binaries
// and symbol bundles. Multiple reader processes may race on the same
// (source, cachedTarget) pair; the only serialization point is the
// exclusive rename (spec.md §4.7/§5).
//
// Grounded on original_source/reader/LoadDump.cpp's CacheFile lambda.
type BinaryCache struct {
	group singleflight.Group
	// paths memoizes resolved cache paths within one process run, the
	// same pattern internal/commands/watch/cache.go's MemoryCache uses
	// (SPEC_FULL.md §11).
	paths *lru.Cache[string, string]
}

// NewBinaryCache builds a BinaryCache with an in-memory LRU of the given
// capacity.
func NewBinaryCache(capacity int) (*BinaryCache, error) {
	paths, err := lru.New[string, string](capacity)
	if err != nil {
		return nil, err
	}
	return &BinaryCache{paths: paths}, nil
}

// Cache implements the contract of spec.md §4.7's cache(source,
// cachedTarget):
//
//   - cachedTarget exists -> return cachedTarget.
//   - source exists -> copy with /bin/cp -R to a sibling temp name,
//     verify sizes, publish with an exclusive rename.
//   - neither exists -> return NotCached.
func (c *BinaryCache) Cache(source, cachedTarget string) (string, error) {
	key := source + "\x00" + cachedTarget
	if cached, ok := c.paths.Get(key); ok {
		return cached, nil
	}

	// singleflight collapses concurrent in-process callers racing on the
	// same (source, cachedTarget) pair onto a single copy+rename;
	// cross-process races are still serialized by the exclusive rename
	// itself (SPEC_FULL.md §11).
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		return c.cacheUncached(source, cachedTarget)
	})
	if err != nil {
		return "", err
	}

	result := v.(string)
	if result != NotCached {
		c.paths.Add(key, result)
	}
	return result, nil
}

func (c *BinaryCache) cacheUncached(source, cachedTarget string) (string, error) {
	if exists(cachedTarget) {
		return cachedTarget, nil
	}
	if !exists(source) {
		return NotCached, nil
	}

	if err := os.MkdirAll(filepath.Dir(cachedTarget), 0o755); err != nil {
		return "", errors.Wrap(err, "create cache parent directories")
	}

	tmp := filepath.Join(filepath.Dir(cachedTarget), uniqueSuffix())

	// The copy MUST be performed by spawning the real /bin/cp -R: a
	// recursive copy is required because source may be a .dSYM
	// directory bundle, and an inline copy routine is known to
	// silently truncate files over SMBv2 (spec.md §4.7).
	if err := utils.CopyTree(source, tmp); err != nil {
		return "", errors.Wrap(err, "cp -R to temporary cache entry")
	}

	if err := verifySizesMatch(source, tmp); err != nil {
		os.RemoveAll(tmp)
		return "", err
	}

	if err := unix.Renamex_np(tmp, cachedTarget, unix.RENAME_EXCL); err != nil {
		if errors.Is(err, os.ErrExist) || err == unix.EEXIST {
			// Another process published cachedTarget first; drop our
			// temporary and defer to the winner.
			os.RemoveAll(tmp)
			return cachedTarget, nil
		}
		os.RemoveAll(tmp)
		return "", errors.Wrap(err, "exclusive rename to cached target")
	}

	return cachedTarget, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func uniqueSuffix() string {
	var b [16]byte
	f, err := os.Open("/dev/urandom")
	if err == nil {
		defer f.Close()
		f.Read(b[:])
	}
	return fmt.Sprintf(".tmp-%x", b)
}

// verifySizesMatch asserts, per spec.md §4.7: if source is a regular
// file, size(tmp) == size(source); if a directory, the recursive sum of
// file sizes matches. A mismatch is treated as fatal since the cache
// would otherwise become permanently inconsistent.
func verifySizesMatch(source, tmp string) error {
	srcInfo, err := os.Stat(source)
	if err != nil {
		return errors.Wrap(err, "stat source")
	}

	if !srcInfo.IsDir() {
		tmpInfo, err := os.Stat(tmp)
		if err != nil {
			return errors.Wrap(err, "stat temporary copy")
		}
		if tmpInfo.Size() != srcInfo.Size() {
			return errors.Errorf("cache copy size mismatch: %s is %d bytes, %s is %d bytes", tmp, tmpInfo.Size(), source, srcInfo.Size())
		}
		return nil
	}

	srcSize, err := dirSize(source)
	if err != nil {
		return errors.Wrap(err, "sum source directory size")
	}
	tmpSize, err := dirSize(tmp)
	if err != nil {
		return errors.Wrap(err, "sum temporary directory size")
	}
	if srcSize != tmpSize {
		return errors.Errorf("cache copy directory size mismatch: %s is %d bytes, %s is %d bytes", tmp, tmpSize, source, srcSize)
	}
	return nil
}

func dirSize(root string) (int64, error) {
	var total int64
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			total += info.Size()
		}
		return nil
	})
	return total, err
}
