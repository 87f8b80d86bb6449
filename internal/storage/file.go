package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	logx "numwatch/pkg/logx"
)

// fileStore keeps all sites in one JSON object keyed by site id.
// Every Save reads the whole file, merges one record and rewrites it.
type fileStore struct {
	path string
	log  logx.Logger

	mu sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./website_data.json"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: path, log: log}, nil
}

func (s *fileStore) Close() error { return nil }

func (s *fileStore) Load(ctx context.Context) (map[string]Record, error) {
	_ = ctx
	s.mu.Lock()
	raw := s.readLocked()
	s.mu.Unlock()

	out := make(map[string]Record, len(raw))
	ids := make([]string, 0, len(raw))
	for id := range raw {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		var jr jsonRecord
		if err := json.Unmarshal(raw[id], &jr); err != nil {
			s.log.Warn("skipping unreadable site record", logx.Site(id), logx.Err(err))
			continue
		}
		r, err := decodeRecord(jr)
		if err != nil {
			s.log.Warn("skipping unreadable site record", logx.Site(id), logx.Err(err))
			continue
		}
		out[id] = r
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, id string, r Record) error {
	_ = ctx
	if strings.TrimSpace(id) == "" {
		return errors.New("site id is required")
	}
	b, err := json.Marshal(encodeRecord(r))
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.readLocked()
	all[id] = b
	return s.writeLocked(all)
}

// readLocked returns the raw records. A missing or corrupt file is empty state.
func (s *fileStore) readLocked() map[string]json.RawMessage {
	out := map[string]json.RawMessage{}
	b, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.log.Warn("state file unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		}
		return out
	}
	if len(strings.TrimSpace(string(b))) == 0 {
		return out
	}
	if err := json.Unmarshal(b, &out); err != nil {
		s.log.Warn("state file corrupt; starting empty", logx.String("path", s.path), logx.Err(err))
		return map[string]json.RawMessage{}
	}
	return out
}

func (s *fileStore) writeLocked(all map[string]json.RawMessage) error {
	b, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
