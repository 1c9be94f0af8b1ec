package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	logx "pomodorod/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot)
//   - <prefix>.journal.jsonl (append-only journal, one batch per line)
//
// The journal is periodically compacted into the snapshot. A torn final
// journal line (crash mid-write) fails to decode and is skipped on replay, so
// a batch is applied entirely or not at all.
type fileStore struct {
	hub

	log logx.Logger

	mu sync.Mutex

	snapshotPath string
	journal      *os.File
	kv           map[string]string
	// sync flushes a file to stable storage; replaced in tests.
	sync func(*os.File) error

	writes       int
	compactEvery int
}

type journalRecord struct {
	Set map[string]string `json:"set,omitempty"`
	Del []string          `json:"del,omitempty"`
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	snapPath := prefix + ".snapshot.json"
	journalPath := prefix + ".journal.jsonl"

	kv := map[string]string{}
	if err := loadSnapshot(snapPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage snapshot unreadable; starting from journal only", logx.String("path", snapPath), logx.Err(err))
	}
	if err := replayJournal(journalPath, kv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("storage journal replay stopped early", logx.String("path", journalPath), logx.Err(err))
	}

	jf, err := os.OpenFile(journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	if err := trimTornTail(jf); err != nil {
		_ = jf.Close()
		return nil, err
	}

	every := cfg.CompactEvery
	if every <= 0 {
		every = 1000
	}
	return &fileStore{
		log:          log,
		snapshotPath: snapPath,
		journal:      jf,
		kv:           kv,
		sync:         (*os.File).Sync,
		compactEvery: every,
	}, nil
}

func (s *fileStore) Get(ctx context.Context, key string) (string, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return "", false, ErrClosed
	}
	v, ok := s.kv[strings.TrimSpace(key)]
	return v, ok, nil
}

func (s *fileStore) Set(ctx context.Context, key, value string) error {
	return s.SetMany(ctx, map[string]string{key: value})
}

func (s *fileStore) SetMany(ctx context.Context, kv map[string]string) error {
	_ = ctx
	s.mu.Lock()
	if s.journal == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	next := cloneMap(s.kv)
	changes, err := applySet(next, kv)
	if err != nil || len(changes) == 0 {
		s.mu.Unlock()
		return err
	}
	rec := journalRecord{Set: map[string]string{}}
	for _, c := range changes {
		rec.Set[c.Key] = c.Value
	}
	if err := s.appendLocked(rec); err != nil {
		s.mu.Unlock()
		return err
	}
	s.kv = next
	s.maybeCompactLocked()
	s.mu.Unlock()

	s.publish(changes)
	return nil
}

func (s *fileStore) Delete(ctx context.Context, keys ...string) error {
	_ = ctx
	s.mu.Lock()
	if s.journal == nil {
		s.mu.Unlock()
		return ErrClosed
	}
	next := cloneMap(s.kv)
	changes := applyDelete(next, keys)
	if len(changes) == 0 {
		s.mu.Unlock()
		return nil
	}
	rec := journalRecord{}
	for _, c := range changes {
		rec.Del = append(rec.Del, c.Key)
	}
	if err := s.appendLocked(rec); err != nil {
		s.mu.Unlock()
		return err
	}
	s.kv = next
	s.maybeCompactLocked()
	s.mu.Unlock()

	s.publish(changes)
	return nil
}

func (s *fileStore) Compact(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journal == nil {
		return ErrClosed
	}
	return s.compactLocked()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	var err error
	if s.journal != nil {
		err = s.journal.Close()
		s.journal = nil
	}
	s.mu.Unlock()
	s.closeAll()
	return err
}

func (s *fileStore) appendLocked(rec journalRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	// One write call per batch keeps a batch on a single line.
	if _, err := s.journal.Write(append(b, '\n')); err != nil {
		return err
	}
	// The checkpoint must outlive an OS crash, not just a process kill.
	if err := s.sync(s.journal); err != nil {
		return err
	}
	s.writes++
	return nil
}

func (s *fileStore) maybeCompactLocked() {
	if s.writes%s.compactEvery != 0 {
		return
	}
	if err := s.compactLocked(); err != nil {
		s.log.Debug("storage compact failed", logx.Err(err))
	}
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.kv); err != nil {
		_ = f.Close()
		return err
	}
	if err := s.sync(f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}
	// Persist the rename before the journal it replaces is truncated.
	if err := s.syncDir(filepath.Dir(s.snapshotPath)); err != nil {
		return err
	}
	if err := s.journal.Truncate(0); err != nil {
		return err
	}
	_, err = s.journal.Seek(0, io.SeekEnd)
	return err
}

func (s *fileStore) syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return s.sync(d)
}

func loadSnapshot(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	var m map[string]string
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return err
	}
	for k, v := range m {
		out[k] = v
	}
	return nil
}

func replayJournal(path string, out map[string]string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r journalRecord
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			continue
		}
		for k, v := range r.Set {
			out[k] = v
		}
		for _, k := range r.Del {
			delete(out, k)
		}
	}
	return sc.Err()
}

// trimTornTail cuts a partial last line so new batches start on a fresh line.
func trimTornTail(f *os.File) error {
	st, err := f.Stat()
	if err != nil || st.Size() == 0 {
		return err
	}
	b, err := io.ReadAll(io.NewSectionReader(f, 0, st.Size()))
	if err != nil {
		return err
	}
	if b[len(b)-1] == '\n' {
		return nil
	}
	keep := int64(strings.LastIndexByte(string(b), '\n') + 1)
	if err := f.Truncate(keep); err != nil {
		return err
	}
	_, err = f.Seek(0, io.SeekEnd)
	return err
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
