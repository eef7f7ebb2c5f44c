package chambermaster

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fixtureDocument is the on-disk layout of a fixture file.
type fixtureDocument struct {
	MembersList    *[]ListMember     `json:"members_list_response"`
	MembersDetails *[]DetailedMember `json:"member_details_response"`
}

// FixtureDirectory serves members from a local JSON document. The parsed document is
// cached and dropped whenever the file changes on disk.
type FixtureDirectory struct {
	path    string
	watcher *fsnotify.Watcher

	mu     sync.Mutex
	cached *fixtureDocument
	done   chan struct{}
}

// NewFixtureDirectory creates a fixture backend for path and starts watching it.
// The file does not need to exist yet; reads fail until it does.
func NewFixtureDirectory(path string) (*FixtureDirectory, error) {
	if path == "" {
		return nil, errors.New("fixture path is required")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve fixture path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fixture watcher: %w", err)
	}
	// Watch the directory so editors that replace the file by rename are seen.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("failed to watch fixture directory: %w", err)
	}

	f := &FixtureDirectory{path: abs, watcher: watcher, done: make(chan struct{})}
	go f.watch()
	return f, nil
}

func (f *FixtureDirectory) watch() {
	defer close(f.done)
	for {
		select {
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				f.invalidate()
				slog.Debug("fixture changed, cache dropped", "path", f.path, "op", ev.Op.String())
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("fixture watcher error", "path", f.path, "error", err)
		}
	}
}

func (f *FixtureDirectory) invalidate() {
	f.mu.Lock()
	f.cached = nil
	f.mu.Unlock()
}

// Close stops the file watcher.
func (f *FixtureDirectory) Close() error {
	err := f.watcher.Close()
	<-f.done
	return err
}

func (f *FixtureDirectory) load(ctx context.Context, op string) (*fixtureDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached != nil {
		return f.cached, nil
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		slog.WarnContext(ctx, "failed to read directory fixture", "path", f.path, "error", err)
		return nil, &RequestError{Op: op, Reason: "fixture unreadable", Cause: err}
	}

	var doc fixtureDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		slog.WarnContext(ctx, "failed to parse directory fixture", "path", f.path, "error", err)
		return nil, &RequestError{Op: op, Reason: "fixture is not valid JSON", Cause: err}
	}

	f.cached = &doc
	return &doc, nil
}

// FetchDetailed returns the fixture's member_details_response.
func (f *FixtureDirectory) FetchDetailed(ctx context.Context, _ Account) ([]DetailedMember, error) {
	const op = "fetch member details"
	doc, err := f.load(ctx, op)
	if err != nil {
		return nil, err
	}
	if doc.MembersDetails == nil {
		return nil, &RequestError{Op: op, Reason: "fixture has no member_details_response"}
	}
	out := make([]DetailedMember, len(*doc.MembersDetails))
	copy(out, *doc.MembersDetails)
	return out, nil
}

// FetchList returns the fixture's members_list_response, filtered locally by status.
func (f *FixtureDirectory) FetchList(ctx context.Context, _ Account, statusFilter *Status) ([]ListMember, error) {
	const op = "fetch member list"
	doc, err := f.load(ctx, op)
	if err != nil {
		return nil, err
	}
	if doc.MembersList == nil {
		return nil, &RequestError{Op: op, Reason: "fixture has no members_list_response"}
	}

	out := make([]ListMember, 0, len(*doc.MembersList))
	for _, m := range *doc.MembersList {
		if statusFilter != nil && m.Status != *statusFilter {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
