// Package vfs is the file registry: it maps filesystem paths to stable,
// process-lifetime file handles and feeds their metadata (revision,
// permissions, status) into the query engine as inputs. All invalidation in
// the system starts here.
package vfs

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"sync"
	"time"
)

// Status records whether a file currently exists. Deletion is an ordinary
// state, not an error: files routinely vanish between discovery and open.
type Status int

const (
	StatusExists Status = iota
	StatusDeleted
)

func (s Status) String() string {
	if s == StatusDeleted {
		return "deleted"
	}
	return "exists"
}

// RevisionKind distinguishes how a revision marker was produced. Markers of
// different kinds never compare equal, and no ordering exists between any
// two revisions: equality is the whole contract.
type RevisionKind uint8

const (
	RevisionAbsent RevisionKind = iota
	RevisionModTime
	RevisionContentHash
)

// Revision is an opaque change marker for one file. A disk file carries its
// modification time, an open in-memory document carries a hash of its
// content, and a deleted file carries the zero marker.
type Revision struct {
	kind  RevisionKind
	mtime int64
	hash  [32]byte
}

func ModTimeRevision(t time.Time) Revision {
	return Revision{kind: RevisionModTime, mtime: t.UnixNano()}
}

func ContentRevision(content []byte) Revision {
	return Revision{kind: RevisionContentHash, hash: sha256.Sum256(content)}
}

func (r Revision) Kind() RevisionKind { return r.kind }

func (r Revision) IsZero() bool { return r == Revision{} }

// Equal reports whether two markers denote the same file state. Markers of
// different kinds are never equal even if their payloads coincide.
func (r Revision) Equal(o Revision) bool { return r == o }

func (r Revision) String() string {
	switch r.kind {
	case RevisionModTime:
		return fmt.Sprintf("mtime:%d", r.mtime)
	case RevisionContentHash:
		return fmt.Sprintf("hash:%x", r.hash[:4])
	default:
		return "absent"
	}
}

// Metadata is the externally observable state of one file, stored as a
// single engine input per path.
type Metadata struct {
	Revision    Revision
	Permissions fs.FileMode
	Status      Status
}

// File is a stable handle for one canonical path. Two lookups of the same
// path always yield the same *File, so handles are safe to use as map and
// query keys. All mutable state lives in the registry's inputs, not here.
type File struct {
	path string
	init sync.Once
}

func (f *File) Path() string { return f.path }

func (f *File) String() string { return f.path }
