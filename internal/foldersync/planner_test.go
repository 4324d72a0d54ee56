package foldersync

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradedata/s3sync/internal/synccache"
)

var (
	t1 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	t2 = t1.Add(time.Hour)
)

type planFixture struct {
	t       *testing.T
	root    string
	local   Snapshot
	remote  Snapshot
	cached  map[string]*synccache.Record
	content map[string][]byte // remote key -> uncompressed contents
	fetches int
}

func newPlanFixture(t *testing.T) *planFixture {
	return &planFixture{
		t:       t,
		root:    t.TempDir(),
		local:   Snapshot{},
		remote:  Snapshot{},
		cached:  map[string]*synccache.Record{},
		content: map[string][]byte{},
	}
}

func (f *planFixture) writeLocal(path, body string, mtime time.Time) *Fingerprint {
	abs := filepath.Join(f.root, filepath.FromSlash(path))
	require.NoError(f.t, os.MkdirAll(filepath.Dir(abs), 0o755))
	require.NoError(f.t, os.WriteFile(abs, []byte(body), 0o644))
	require.NoError(f.t, os.Chtimes(abs, mtime, mtime))
	info, err := os.Stat(abs)
	require.NoError(f.t, err)

	fp := &Fingerprint{Path: path, Size: info.Size(), ModTime: info.ModTime()}
	f.local[path] = fp
	return fp
}

func (f *planFixture) putRemote(path, body string, mtime time.Time) *Fingerprint {
	fp := &Fingerprint{
		Path:    path,
		Size:    int64(len(body)),
		ModTime: mtime,
		Key:     path,
		ETag:    HashBytes([]byte(body)).MD5,
	}
	f.remote[path] = fp
	f.content[fp.Key] = []byte(body)
	return fp
}

func (f *planFixture) putRemoteCompressed(path, body string, mtime time.Time) *Fingerprint {
	compressed, err := Compress([]byte(body))
	require.NoError(f.t, err)

	fp := &Fingerprint{
		Path:       path,
		Size:       int64(len(compressed)),
		ModTime:    mtime,
		Key:        EncodeKey(path, true),
		ETag:       HashBytes(compressed).MD5,
		Compressed: true,
	}
	f.remote[path] = fp
	f.content[fp.Key] = []byte(body)
	return fp
}

// remember records that l and r were in sync when their contents were body
func (f *planFixture) remember(l, r *Fingerprint, body string) {
	rec := &synccache.Record{Hash: HashBytes([]byte(body)).SHA256}
	if l != nil {
		rec.Path, rec.Size, rec.ModTime = l.Path, l.Size, l.ModTime
	}
	if r != nil {
		rec.Path, rec.ETag = r.Path, r.ETag
	}
	f.cached[rec.Path] = rec
}

func (f *planFixture) plan(opts Options) (map[string]*Action, *Hasher) {
	hasher := NewHasher(0)
	digest := func(ctx context.Context, fp *Fingerprint) (Digest, error) {
		f.fetches++
		body, ok := f.content[fp.Key]
		if !ok {
			return Digest{}, errors.New("no such object")
		}
		return HashBytes(body), nil
	}

	opts.MaxParallel = 1
	actions := NewPlanner(opts, f.root, hasher, digest).Plan(context.Background(), f.local, f.remote, f.cached)
	byPath := make(map[string]*Action, len(actions))
	for _, a := range actions {
		byPath[a.Path] = a
	}
	return byPath, hasher
}

func opts(dir Direction, del bool) Options {
	o := DefaultOptions()
	o.Direction = dir
	o.Delete = del
	return o
}

func hashCalls(n int64) *int64 {
	return &n
}

func TestPlanner_DecisionTable(t *testing.T) {
	cases := []struct {
		name   string
		opts   Options
		setup  func(f *planFixture)
		expect ActionType
		reason string
		// nil leaves the hash count unchecked
		hashes *int64
	}{
		{
			name:   "local only uploads",
			opts:   opts(LocalToRemote, false),
			setup:  func(f *planFixture) { f.writeLocal("a.txt", "hello", t1) },
			expect: ActionUpload,
		},
		{
			name:   "local only is skipped when pulling",
			opts:   opts(RemoteToLocal, false),
			setup:  func(f *planFixture) { f.writeLocal("a.txt", "hello", t1) },
			expect: ActionSkip,
		},
		{
			name:   "remote only downloads",
			opts:   opts(RemoteToLocal, false),
			setup:  func(f *planFixture) { f.putRemote("a.txt", "hello", t1) },
			expect: ActionDownload,
		},
		{
			name:   "remote only is skipped when pushing",
			opts:   opts(LocalToRemote, false),
			setup:  func(f *planFixture) { f.putRemote("a.txt", "hello", t1) },
			expect: ActionSkip,
		},
		{
			name: "cache only is forgotten",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				f.cached["a.txt"] = &synccache.Record{Path: "a.txt", Size: 5, ModTime: t1, ETag: "e"}
			},
			expect: ActionForget,
		},
		{
			name: "cache match skips without hashing",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				l := f.writeLocal("a.txt", "hello", t1)
				r := f.putRemote("a.txt", "hello", t1)
				f.remember(l, r, "hello")
			},
			expect: ActionSkip,
			reason: "unchanged",
			hashes: hashCalls(0),
		},
		{
			name: "size difference uploads without hashing",
			opts: opts(LocalToRemote, false),
			setup: func(f *planFixture) {
				f.writeLocal("a.txt", "hello world", t2)
				f.putRemote("a.txt", "hello", t1)
			},
			expect: ActionUpload,
			hashes: hashCalls(0),
		},
		{
			name: "identical content without cache is skipped by etag",
			opts: opts(LocalToRemote, false),
			setup: func(f *planFixture) {
				f.writeLocal("a.txt", "hello", t2)
				f.putRemote("a.txt", "hello", t1)
			},
			expect: ActionSkip,
			reason: "identical content",
			hashes: hashCalls(1),
		},
		{
			name: "force hashes even when the cache matches",
			opts: func() Options { o := opts(LocalToRemote, false); o.Force = true; return o }(),
			setup: func(f *planFixture) {
				l := f.writeLocal("a.txt", "hello", t1)
				r := f.putRemote("a.txt", "hello", t1)
				f.remember(l, r, "hello")
			},
			expect: ActionSkip,
			reason: "identical content",
			hashes: hashCalls(1),
		},
		{
			name: "equal mtimes with different content conflict",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				f.writeLocal("a.txt", "aaaa", t1)
				f.putRemote("a.txt", "bbbb", t1)
			},
			expect: ActionConflict,
		},
		{
			name: "mtimes within the same second conflict",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				f.writeLocal("a.txt", "aaaa", t1.Add(300*time.Millisecond))
				f.putRemote("a.txt", "bbbb", t1)
			},
			expect: ActionConflict,
		},
		{
			name: "newer local wins",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				f.writeLocal("a.txt", "aaaa", t2)
				f.putRemote("a.txt", "bbbb", t1)
			},
			expect: ActionUpload,
			reason: "local newer",
		},
		{
			name: "newer remote wins",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				f.writeLocal("a.txt", "aaaa", t1)
				f.putRemote("a.txt", "bbbb", t2)
			},
			expect: ActionDownload,
			reason: "remote newer",
		},
		{
			name: "only the remote changed since the last sync",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				l := f.writeLocal("a.txt", "aaaa", t2)
				old := &Fingerprint{Path: "a.txt", ETag: HashBytes([]byte("aaaa")).MD5}
				f.remember(l, old, "aaaa")
				f.putRemote("a.txt", "bbbb", t1)
			},
			expect: ActionDownload,
			reason: "changed remotely",
		},
		{
			name: "only the local file changed since the last sync",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				r := f.putRemote("a.txt", "aaaa", t2)
				f.remember(&Fingerprint{Path: "a.txt", Size: 4, ModTime: t1.Add(-time.Hour)}, r, "aaaa")
				f.writeLocal("a.txt", "bbbb", t1)
			},
			expect: ActionUpload,
			reason: "changed locally",
		},
		{
			name: "remote deleted propagates when allowed",
			opts: opts(RemoteToLocal, true),
			setup: func(f *planFixture) {
				l := f.writeLocal("a.txt", "hello", t1)
				f.remember(l, &Fingerprint{Path: "a.txt", ETag: "gone"}, "hello")
			},
			expect: ActionDeleteLocal,
		},
		{
			name: "remote deleted without delete is skipped when pulling",
			opts: opts(RemoteToLocal, false),
			setup: func(f *planFixture) {
				l := f.writeLocal("a.txt", "hello", t1)
				f.remember(l, &Fingerprint{Path: "a.txt", ETag: "gone"}, "hello")
			},
			expect: ActionSkip,
		},
		{
			name: "remote deleted is restored when pushing",
			opts: opts(LocalToRemote, true),
			setup: func(f *planFixture) {
				l := f.writeLocal("a.txt", "hello", t1)
				f.remember(l, &Fingerprint{Path: "a.txt", ETag: "gone"}, "hello")
			},
			expect: ActionUpload,
		},
		{
			name: "local edit survives a remote delete",
			opts: opts(Bidirectional, true),
			setup: func(f *planFixture) {
				f.remember(&Fingerprint{Path: "a.txt", Size: 5, ModTime: t1}, &Fingerprint{Path: "a.txt", ETag: "gone"}, "hello")
				f.writeLocal("a.txt", "hello, again", t2)
			},
			expect: ActionUpload,
		},
		{
			name: "local deleted propagates when allowed",
			opts: opts(LocalToRemote, true),
			setup: func(f *planFixture) {
				r := f.putRemote("a.txt", "hello", t1)
				f.remember(&Fingerprint{Path: "a.txt", Size: 5, ModTime: t1}, r, "hello")
			},
			expect: ActionDeleteRemote,
		},
		{
			name: "local deleted without delete leaves the remote alone",
			opts: opts(LocalToRemote, false),
			setup: func(f *planFixture) {
				r := f.putRemote("a.txt", "hello", t1)
				f.remember(&Fingerprint{Path: "a.txt", Size: 5, ModTime: t1}, r, "hello")
			},
			expect: ActionSkip,
		},
		{
			name: "local deleted without delete is restored bidirectionally",
			opts: opts(Bidirectional, false),
			setup: func(f *planFixture) {
				r := f.putRemote("a.txt", "hello", t1)
				f.remember(&Fingerprint{Path: "a.txt", Size: 5, ModTime: t1}, r, "hello")
			},
			expect: ActionDownload,
		},
		{
			name: "compressed remote compares through the cached hash",
			opts: opts(LocalToRemote, false),
			setup: func(f *planFixture) {
				r := f.putRemoteCompressed("a.txt", "hello", t1)
				f.remember(&Fingerprint{Path: "a.txt", Size: 5, ModTime: t1}, r, "hello")
				// touched, same contents
				f.writeLocal("a.txt", "hello", t2)
			},
			expect: ActionSkip,
			reason: "identical content",
			hashes: hashCalls(1),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPlanFixture(t)
			tc.setup(f)

			actions, hasher := f.plan(tc.opts)
			require.Contains(t, actions, "a.txt")
			a := actions["a.txt"]
			assert.Equal(t, tc.expect, a.Type, a.Reason)
			assert.NoError(t, a.Err)
			if tc.reason != "" {
				assert.Equal(t, tc.reason, a.Reason)
			}
			if tc.hashes != nil {
				assert.Equal(t, *tc.hashes, hasher.Calls())
			}
			assert.Zero(t, f.fetches)
		})
	}
}

func TestPlanner_IdenticalContentRefreshesRecord(t *testing.T) {
	f := newPlanFixture(t)
	l := f.writeLocal("a.txt", "hello", t2)
	r := f.putRemote("a.txt", "hello", t1)

	actions, _ := f.plan(opts(Bidirectional, false))
	a := actions["a.txt"]
	require.Equal(t, ActionSkip, a.Type)
	require.NotNil(t, a.Record)
	assert.Equal(t, l.Size, a.Record.Size)
	assert.True(t, l.ModTime.Equal(a.Record.ModTime))
	assert.Equal(t, r.ETag, a.Record.ETag)
	assert.Equal(t, HashBytes([]byte("hello")).SHA256, a.Record.Hash)
}

func TestPlanner_FetchesCompressedRemoteWithoutCache(t *testing.T) {
	f := newPlanFixture(t)
	f.writeLocal("a.txt", "same bytes", t1)
	f.putRemoteCompressed("a.txt", "same bytes", t2)

	actions, hasher := f.plan(opts(Bidirectional, false))
	assert.Equal(t, ActionSkip, actions["a.txt"].Type)
	assert.Equal(t, 1, f.fetches)
	assert.Equal(t, int64(1), hasher.Calls())
}

func TestPlanner_HashFailureBecomesActionError(t *testing.T) {
	f := newPlanFixture(t)
	f.local["a.txt"] = &Fingerprint{Path: "a.txt", Size: 5, ModTime: t1}
	f.putRemote("a.txt", "hello", t1)

	actions, _ := f.plan(opts(Bidirectional, false))
	a := actions["a.txt"]
	require.Error(t, a.Err)
	assert.ErrorIs(t, a.Err, ErrScan)
}

func TestPlanner_SortedUnion(t *testing.T) {
	f := newPlanFixture(t)
	f.writeLocal("b.txt", "b", t1)
	f.putRemote("a.txt", "a", t1)
	f.cached["c.txt"] = &synccache.Record{Path: "c.txt"}

	hasher := NewHasher(0)
	actions := NewPlanner(opts(Bidirectional, false), f.root, hasher, nil).Plan(context.Background(), f.local, f.remote, f.cached)
	require.Len(t, actions, 3)
	assert.Equal(t, "a.txt", actions[0].Path)
	assert.Equal(t, "b.txt", actions[1].Path)
	assert.Equal(t, "c.txt", actions[2].Path)
	assert.Equal(t, []ActionType{ActionDownload, ActionUpload, ActionForget},
		[]ActionType{actions[0].Type, actions[1].Type, actions[2].Type})
}

func TestPlanner_CaseCollisionsAreConflicts(t *testing.T) {
	f := newPlanFixture(t)
	f.putRemote("A.csv", "upper", t1)
	f.putRemote("a.csv", "lower", t2)
	f.writeLocal("Report.TXT", "local", t1)
	f.putRemote("report.txt", "remote", t2)
	f.writeLocal("plain.txt", "plain", t1)

	actions, _ := f.plan(opts(Bidirectional, false))
	for _, path := range []string{"A.csv", "a.csv", "Report.TXT", "report.txt"} {
		a := actions[path]
		require.NotNil(t, a, path)
		assert.Equal(t, ActionConflict, a.Type, path)
		assert.Contains(t, a.Reason, "letter case", path)
	}
	assert.Equal(t, "differs only in letter case from a.csv", actions["A.csv"].Reason)
	assert.Equal(t, ActionUpload, actions["plain.txt"].Type)
}

func TestCaseCollisions(t *testing.T) {
	got := caseCollisions([]string{"dir/Äpfel.csv", "dir/ÄPFEL.csv", "dir/äpfel.csv", "x.txt", "y.txt"})
	assert.Equal(t, map[string]string{
		"dir/Äpfel.csv": "dir/ÄPFEL.csv",
		"dir/ÄPFEL.csv": "dir/Äpfel.csv",
		"dir/äpfel.csv": "dir/Äpfel.csv",
	}, got)
}
