package foldersync

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/tradedata/s3sync/internal/synccache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/text/cases"
)

// RemoteDigestFunc fetches a remote object and hashes its uncompressed contents
type RemoteDigestFunc func(ctx context.Context, fp *Fingerprint) (Digest, error)

// Planner turns the local, remote and cached views of a tree into one action per path.
// Direction only changes which side wins a difference and which deletes are legal.
type Planner struct {
	opts         Options
	localRoot    string
	hasher       *Hasher
	remoteDigest RemoteDigestFunc
}

func NewPlanner(opts Options, localRoot string, hasher *Hasher, remoteDigest RemoteDigestFunc) *Planner {
	if hasher == nil {
		hasher = NewHasher(0)
	}
	return &Planner{
		opts:         opts,
		localRoot:    localRoot,
		hasher:       hasher,
		remoteDigest: remoteDigest,
	}
}

// Plan decides an action for every path in the union of local, remote and cached.
// Actions are sorted by path.
func (p *Planner) Plan(ctx context.Context, local, remote Snapshot, cached map[string]*synccache.Record) []*Action {
	paths := mapset.NewThreadUnsafeSetWithSize[string](len(local) + len(remote))
	for path := range local {
		paths.Add(path)
	}
	for path := range remote {
		paths.Add(path)
	}
	for path := range cached {
		paths.Add(path)
	}

	sorted := paths.ToSlice()
	sort.Strings(sorted)

	present := make([]string, 0, len(sorted))
	for _, path := range sorted {
		if local[path] != nil || remote[path] != nil {
			present = append(present, path)
		}
	}
	collisions := caseCollisions(present)

	actions := make([]*Action, len(sorted))
	var g errgroup.Group
	g.SetLimit(max(p.opts.MaxParallel, 1))
	for i, path := range sorted {
		if other, ok := collisions[path]; ok {
			actions[i] = &Action{
				Path:   path,
				Local:  local[path],
				Remote: remote[path],
				Cached: cached[path],
				Type:   ActionConflict,
				Reason: "differs only in letter case from " + other,
			}
			continue
		}
		g.Go(func() error {
			actions[i] = p.decide(ctx, path, local[path], remote[path], cached[path])
			return nil
		})
	}
	_ = g.Wait()

	return actions
}

func (p *Planner) decide(ctx context.Context, path string, l, r *Fingerprint, c *synccache.Record) *Action {
	a := &Action{Path: path, Local: l, Remote: r, Cached: c}
	dir := p.opts.Direction

	switch {
	case l == nil && r == nil:
		a.Type, a.Reason = ActionForget, "gone from both sides"

	case r == nil && c == nil:
		if dir.allowsUpload() {
			a.Type, a.Reason = ActionUpload, "new local file"
		} else {
			a.Type, a.Reason = ActionSkip, "local only"
		}

	case l == nil && c == nil:
		if dir.allowsDownload() {
			a.Type, a.Reason = ActionDownload, "new remote object"
		} else {
			a.Type, a.Reason = ActionSkip, "remote only"
		}

	case r == nil:
		// synced before, the remote copy has been deleted since
		localEdited := dir == Bidirectional && !c.MatchesLocal(l.Size, l.ModTime)
		switch {
		case p.opts.Delete && dir.allowsDeleteLocal() && !localEdited:
			a.Type, a.Reason = ActionDeleteLocal, "deleted remotely"
		case dir.allowsUpload():
			a.Type, a.Reason = ActionUpload, "missing remotely"
		default:
			a.Type, a.Reason = ActionSkip, "missing remotely"
		}

	case l == nil:
		remoteEdited := dir == Bidirectional && !c.MatchesRemote(r.ETag)
		switch {
		case p.opts.Delete && dir.allowsDeleteRemote() && !remoteEdited:
			a.Type, a.Reason = ActionDeleteRemote, "deleted locally"
		case dir.allowsDownload():
			a.Type, a.Reason = ActionDownload, "missing locally"
		default:
			a.Type, a.Reason = ActionSkip, "missing locally"
		}

	default:
		p.decideBoth(ctx, a)
	}

	return a
}

func (p *Planner) decideBoth(ctx context.Context, a *Action) {
	l, r, c := a.Local, a.Remote, a.Cached

	if !p.opts.Force && c.MatchesLocal(l.Size, l.ModTime) && c.MatchesRemote(r.ETag) {
		a.Type, a.Reason = ActionSkip, "unchanged"
		return
	}

	same, err := p.sameContent(ctx, l, r, c)
	if err != nil {
		a.Type, a.Reason, a.Err = ActionSkip, "compare failed", err
		return
	}

	if same {
		rec := &synccache.Record{Path: l.Path, Size: l.Size, ModTime: l.ModTime, Hash: l.Hash, ETag: r.ETag}
		if !rec.Equivalent(c) {
			a.Record = rec
		}
		a.Type, a.Reason = ActionSkip, "identical content"
		return
	}

	switch p.opts.Direction {
	case LocalToRemote:
		a.Type, a.Reason = ActionUpload, "local differs"
		return
	case RemoteToLocal:
		a.Type, a.Reason = ActionDownload, "remote differs"
		return
	}

	if c != nil {
		localChanged := !c.MatchesLocal(l.Size, l.ModTime)
		remoteChanged := !c.MatchesRemote(r.ETag)
		if localChanged && !remoteChanged {
			a.Type, a.Reason = ActionUpload, "changed locally"
			return
		}
		if remoteChanged && !localChanged {
			a.Type, a.Reason = ActionDownload, "changed remotely"
			return
		}
	}

	diff := l.ModTime.Truncate(time.Second).Sub(r.ModTime.Truncate(time.Second))
	switch {
	case diff.Abs() <= p.opts.ClockSkew:
		a.Type, a.Reason = ActionConflict, "both sides differ with equal modification time"
	case diff > 0:
		a.Type, a.Reason = ActionUpload, "local newer"
	default:
		a.Type, a.Reason = ActionDownload, "remote newer"
	}
}

// sameContent compares a local file with a remote object, hashing as little as possible.
func (p *Planner) sameContent(ctx context.Context, l, r *Fingerprint, c *synccache.Record) (bool, error) {
	if !p.opts.Force && !r.Compressed && l.Size != r.Size {
		return false, nil
	}

	abs := filepath.Join(p.localRoot, filepath.FromSlash(l.Path))
	hashFile := p.hasher.HashFile
	if p.opts.Force {
		hashFile = p.hasher.Rehash
	}
	d, err := hashFile(abs, l.Size, l.ModTime)
	if err != nil {
		return false, scanError("hash", l.Path, err)
	}
	l.Hash = d.SHA256

	if !p.opts.Force && c != nil && c.Hash != "" && c.MatchesRemote(r.ETag) {
		r.Hash = c.Hash
		return r.Hash == l.Hash, nil
	}

	if !r.Compressed && isPlainMD5(r.ETag) {
		return strings.EqualFold(r.ETag, d.MD5), nil
	}

	if p.remoteDigest == nil {
		return false, nil
	}
	rd, err := p.remoteDigest(ctx, r)
	if err != nil {
		return false, transferError("Compare", l.Path, err)
	}
	r.Hash = rd.SHA256
	return r.Hash == l.Hash, nil
}

// isPlainMD5 reports whether an etag is the MD5 of the object, true for single part uploads
// and false for multipart etags ("<md5>-<parts>").
func isPlainMD5(etag string) bool {
	if len(etag) != 32 {
		return false
	}
	_, err := hex.DecodeString(etag)
	return err == nil
}

// caseCollisions maps every path that equals another one under Unicode case folding to the
// first other path it collides with. Such paths cannot coexist on a case-insensitive filesystem.
func caseCollisions(paths []string) map[string]string {
	fold := cases.Fold()
	groups := make(map[string][]string)
	for _, path := range paths {
		key := fold.String(path)
		groups[key] = append(groups[key], path)
	}

	collisions := make(map[string]string)
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		for i, path := range group {
			other := group[0]
			if i == 0 {
				other = group[1]
			}
			collisions[path] = other
		}
	}
	return collisions
}
