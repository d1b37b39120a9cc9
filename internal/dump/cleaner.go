package dump

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"driftpursuit/rewind/internal/logging"
)

// RetentionPolicy bounds how many bundles stay on disk.
type RetentionPolicy struct {
	MaxBundles int
	MaxAge     time.Duration
}

// StorageStats summarises the disk footprint of persisted bundles.
type StorageStats struct {
	Bundles   int       `json:"bundles"`
	Bytes     int64     `json:"bytes"`
	Removed   int       `json:"removed"`
	LastSweep time.Time `json:"last_sweep"`
}

// Cleaner prunes bundle directories according to a retention policy.
type Cleaner struct {
	mu     sync.RWMutex
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time
	stats  StorageStats
}

// NewCleaner constructs a cleaner for the provided dump directory.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger.Named("dump_retention"), now: time.Now}
}

// Run sweeps on every interval until ctx is cancelled.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil || ctx == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	c.RunOnce()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce()
		}
	}
}

// RunOnce performs a single retention sweep.
func (c *Cleaner) RunOnce() {
	if c == nil || strings.TrimSpace(c.dir) == "" {
		return
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		c.log.Warn("dump retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}
	bundles := c.collect(entries)
	now := c.now()
	stats := StorageStats{LastSweep: now}
	for _, b := range bundles {
		//1.- Age is checked first; the count cap applies to what survives it.
		reason := c.removalReason(b, now, stats.Bundles)
		if reason != "" {
			err := os.RemoveAll(b.path)
			if err == nil {
				stats.Removed++
				c.log.Info("dump retention removed bundle", logging.String("bundle", b.name), logging.String("reason", reason))
				continue
			}
			c.log.Warn("dump retention removal failed", logging.Error(err), logging.String("bundle", b.name))
		}
		stats.Bundles++
		stats.Bytes += b.size
	}
	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// Stats returns the last recorded storage statistics.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

type bundle struct {
	name    string
	path    string
	size    int64
	modTime time.Time
}

func (c *Cleaner) collect(entries []os.DirEntry) []bundle {
	bundles := make([]bundle, 0, len(entries))
	for _, entry := range entries {
		//1.- Only directories holding a header are bundles; anything else is left alone.
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		header, err := os.Stat(filepath.Join(path, headerName))
		if err != nil {
			continue
		}
		size, err := directorySize(path)
		if err != nil {
			c.log.Warn("dump retention size failed", logging.Error(err), logging.String("path", path))
			continue
		}
		bundles = append(bundles, bundle{name: entry.Name(), path: path, size: size, modTime: header.ModTime()})
	}
	//2.- Newest first so the count cap keeps recent bundles.
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].modTime.After(bundles[j].modTime) })
	return bundles
}

func (c *Cleaner) removalReason(b bundle, now time.Time, kept int) string {
	if c.policy.MaxAge > 0 && now.Sub(b.modTime) > c.policy.MaxAge {
		return fmt.Sprintf("age>%s", c.policy.MaxAge)
	}
	if c.policy.MaxBundles > 0 && kept >= c.policy.MaxBundles {
		return fmt.Sprintf(">=%d bundles", c.policy.MaxBundles)
	}
	return ""
}

func directorySize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
