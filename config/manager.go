package config

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TemplateManager hot-reloads prompt templates without requiring process
// restarts. Readers always see a complete config: reloads swap the whole
// PromptConfig under the lock.
type TemplateManager struct {
	path     string
	mu       sync.RWMutex
	cfg      PromptConfig
	lastLoad time.Time
}

// NewTemplateManager seeds a manager from an already-loaded config.
func NewTemplateManager(path string, initial PromptConfig) *TemplateManager {
	return &TemplateManager{path: path, cfg: initial, lastLoad: time.Now()}
}

// Current returns the latest templates, reloading when the file has changed.
func (tm *TemplateManager) Current() PromptConfig {
	_ = tm.reload()
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.cfg
}

// TemplatesFor resolves the instruction templates for one model family.
func (tm *TemplateManager) TemplatesFor(family string) map[string]string {
	return tm.Current().TemplatesFor(family)
}

// Watch re-reads templates whenever the config file is rewritten. It returns
// after registering the watch; the loop exits with ctx. Watching the parent
// directory survives editors that replace the file instead of writing it.
func (tm *TemplateManager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	name := filepath.Base(tm.path)
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-watcher.Events:
				if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) != 0 && filepath.Base(evt.Name) == name {
					if err := tm.reload(); err != nil {
						log.Printf("prompt reload failed (%s): %v", tm.path, err)
					}
				}
			case err := <-watcher.Errors:
				log.Printf("prompt watcher error: %v", err)
			}
		}
	}()
	return watcher.Add(filepath.Dir(tm.path))
}

func (tm *TemplateManager) reload() error {
	info, err := os.Stat(tm.path)
	if err != nil {
		return nil
	}
	tm.mu.RLock()
	last := tm.lastLoad
	tm.mu.RUnlock()
	if !info.ModTime().After(last) {
		return nil
	}
	cfg, err := LoadPromptConfig(tm.path)
	if err != nil {
		return err
	}
	tm.mu.Lock()
	tm.cfg = cfg
	tm.lastLoad = info.ModTime()
	tm.mu.Unlock()
	return nil
}
