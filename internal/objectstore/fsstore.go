package objectstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Sonified/seisstream/internal/errs"
)

// FSStore is a local-filesystem-backed Store, laid out one directory per
// station the way an ingest CLI organizes its archive on disk. It's used
// for tests and single-node deployments.
type FSStore struct {
	root string
	mu   sync.Mutex // serializes CAS check-then-write per process
}

// NewFSStore creates (if needed) root and returns a store rooted there.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, &errs.Permanent{Op: "fsstore.init", Err: err}
	}
	return &FSStore{root: root}, nil
}

func (f *FSStore) abs(path string) string {
	return filepath.Join(f.root, filepath.FromSlash(path))
}

func etagOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (f *FSStore) Put(ctx context.Context, path string, data []byte, opts PutOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	abs := f.abs(path)
	if opts.IfMatch != "" {
		cur, err := f.currentEtag(abs)
		switch {
		case err != nil && !os.IsNotExist(err):
			return "", &errs.Transient{Op: "fsstore.put", Err: err}
		case os.IsNotExist(err):
			if opts.IfMatch != IfMatchAbsent {
				return "", ErrEtagMismatch
			}
		default:
			if cur != opts.IfMatch {
				return "", ErrEtagMismatch
			}
		}
	}
	if opts.Immutable {
		if _, err := os.Stat(abs); err == nil {
			// Immutable blobs are never overwritten. Treat a repeat put of
			// identical bytes as an idempotent success; differing bytes at
			// the same path is a programmer error upstream.
			existing, rerr := os.ReadFile(abs)
			if rerr == nil && etagOf(existing) == etagOf(data) {
				return etagOf(existing), nil
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", &errs.Permanent{Op: "fsstore.put", Err: err}
	}
	tmp := abs + fmt.Sprintf(".tmp-%d", time.Now().UnixNano())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", &errs.Transient{Op: "fsstore.put", Err: err}
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return "", &errs.Transient{Op: "fsstore.put", Err: err}
	}
	return etagOf(data), nil
}

func (f *FSStore) currentEtag(abs string) (string, error) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return "", err
	}
	return etagOf(data), nil
}

func (f *FSStore) Get(ctx context.Context, path string) ([]byte, error) {
	data, err := os.ReadFile(f.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &errs.NotFound{Path: path}
		}
		return nil, &errs.Transient{Op: "fsstore.get", Err: err}
	}
	return data, nil
}

func (f *FSStore) Head(ctx context.Context, path string) (ObjectMeta, error) {
	info, err := os.Stat(f.abs(path))
	if err != nil {
		if os.IsNotExist(err) {
			return ObjectMeta{}, &errs.NotFound{Path: path}
		}
		return ObjectMeta{}, &errs.Transient{Op: "fsstore.head", Err: err}
	}
	etag, err := f.currentEtag(f.abs(path))
	if err != nil {
		return ObjectMeta{}, &errs.Transient{Op: "fsstore.head", Err: err}
	}
	return ObjectMeta{
		Path:     path,
		Size:     info.Size(),
		ETag:     etag,
		Modified: info.ModTime(),
	}, nil
}

func (f *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	root := f.abs(prefix)
	var out []string
	walkRoot := root
	if info, err := os.Stat(root); err != nil || !info.IsDir() {
		// prefix may name a partial directory segment; walk its parent and
		// filter, mirroring S3's prefix semantics.
		walkRoot = filepath.Dir(root)
	}
	err := filepath.Walk(walkRoot, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(f.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, &errs.Transient{Op: "fsstore.list", Err: err}
	}
	sort.Strings(out)
	return out, nil
}

func (f *FSStore) PresignGet(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if _, err := os.Stat(f.abs(path)); err != nil {
		if os.IsNotExist(err) {
			return "", &errs.NotFound{Path: path}
		}
		return "", &errs.Transient{Op: "fsstore.presign", Err: err}
	}
	// Local dev has no real signer; expose a file:// URL with an expiry and
	// a per-call nonce so callers exercise the same query-string shape as
	// S3Store's presigned URLs (and so two presigns of the same path are
	// distinguishable in logs).
	exp := time.Now().Add(ttl).Unix()
	return fmt.Sprintf("file://%s?expires=%d&nonce=%s", f.abs(path), exp, uuid.NewString()), nil
}

func (f *FSStore) PutStream(ctx context.Context, path string, r io.Reader, size int64, opts PutOptions) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", &errs.Transient{Op: "fsstore.putstream", Err: err}
	}
	return f.Put(ctx, path, data, opts)
}
