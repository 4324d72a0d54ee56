package synccache

import "time"

// Record is the last state of a path known to be identical on both sides.
// Size and ModTime describe the local file, ETag the remote object,
// Hash the SHA-256 of the uncompressed contents.
type Record struct {
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	ModTime    time.Time `json:"mod_time"`
	Hash       string    `json:"hash"`
	ETag       string    `json:"etag"`
	LastSynced time.Time `json:"last_synced"`
}

// MatchesLocal reports whether a local file with this size and mtime is unchanged since the record.
func (r *Record) MatchesLocal(size int64, modTime time.Time) bool {
	return r != nil && r.Size == size && r.ModTime.Equal(modTime)
}

// MatchesRemote reports whether the remote object is unchanged since the record.
func (r *Record) MatchesRemote(etag string) bool {
	return r != nil && etag != "" && r.ETag == etag
}

// Equivalent reports whether two records describe the same synced state, ignoring LastSynced.
func (r *Record) Equivalent(o *Record) bool {
	if r == nil || o == nil {
		return r == o
	}
	return r.Path == o.Path && r.Size == o.Size && r.ModTime.Equal(o.ModTime) && r.Hash == o.Hash && r.ETag == o.ETag
}

type dbRecord struct {
	Path       string `db:"path"`
	Size       int64  `db:"size"`
	ModTime    int64  `db:"mod_time"`
	Hash       string `db:"hash"`
	ETag       string `db:"etag"`
	LastSynced int64  `db:"last_synced"`
}

func toDB(r *Record) dbRecord {
	return dbRecord{
		Path:       r.Path,
		Size:       r.Size,
		ModTime:    r.ModTime.UnixNano(),
		Hash:       r.Hash,
		ETag:       r.ETag,
		LastSynced: r.LastSynced.UnixNano(),
	}
}

func (d dbRecord) toRecord() *Record {
	return &Record{
		Path:       d.Path,
		Size:       d.Size,
		ModTime:    time.Unix(0, d.ModTime),
		Hash:       d.Hash,
		ETag:       d.ETag,
		LastSynced: time.Unix(0, d.LastSynced),
	}
}
