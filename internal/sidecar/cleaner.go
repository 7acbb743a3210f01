package sidecar

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/whisperlive-lab/internal/logging"
)

type transcriptFiles struct {
	jsonPath string
	srtPath  string
	mod      time.Time
}

// Prune removes transcripts in dir older than retention, then the oldest
// ones beyond maxFiles. Zero disables either rule. The paired SRT goes with
// its JSON. It returns how many transcripts were removed.
func Prune(dir string, retention time.Duration, maxFiles int) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var list []transcriptFiles
	for _, fi := range entries {
		name := fi.Name()
		if fi.IsDir() || !strings.HasPrefix(name, "transcript-") || !strings.HasSuffix(name, ".json") {
			continue
		}
		info, err := fi.Info()
		if err != nil {
			continue
		}
		jsonPath := filepath.Join(dir, name)
		list = append(list, transcriptFiles{
			jsonPath: jsonPath,
			srtPath:  strings.TrimSuffix(jsonPath, ".json") + ".srt",
			mod:      info.ModTime(),
		})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].mod.Before(list[j].mod) })

	remove := func(t transcriptFiles) {
		_ = os.Remove(t.jsonPath)
		_ = os.Remove(t.srtPath)
	}
	removed := 0
	if retention > 0 {
		cutoff := time.Now().Add(-retention)
		for _, t := range list {
			if !t.mod.Before(cutoff) {
				break
			}
			remove(t)
			removed++
		}
	}
	if maxFiles > 0 {
		for left := len(list) - removed; left > maxFiles; left-- {
			remove(list[removed])
			removed++
		}
	}
	return removed, nil
}

// StartCleaner prunes dir every interval until ctx ends. Caller must call
// wg.Add(1) first; the goroutine calls wg.Done on exit.
func StartCleaner(ctx context.Context, wg *sync.WaitGroup, dir string, retention, interval time.Duration, maxFiles int) {
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := Prune(dir, retention, maxFiles)
				if err != nil {
					logging.Debugw("sidecar: cleanup failed", "dir", dir, "err", err)
					continue
				}
				if n > 0 {
					logging.Infow("sidecar: removed old transcripts", "dir", dir, "removed", n)
				}
			}
		}
	}()
}
