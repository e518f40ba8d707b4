package storage

import (
	"context"
	"fmt"
)

// OpKind is a Store operation kind: every kind keeps its own request registry.
type OpKind string

const (
	OpFetchOne          OpKind = "fetchOne"
	OpFetchCollection   OpKind = "fetchCollection"
	OpCreate            OpKind = "create"
	OpUpdate            OpKind = "update"
	OpDelete            OpKind = "delete"
	OpFetchRelationship OpKind = "fetchRelationship"
)

// OpKinds lists every Store OpKind.
var OpKinds = []OpKind{OpFetchOne, OpFetchCollection, OpCreate, OpUpdate, OpDelete, OpFetchRelationship}

// FetchMode is a collection reconciliation policy.
type FetchMode int

const (
	// PreserveReplace patches matching Models in place, inserts new ones and prunes cached entries
	// (within the segment) absent from the response.
	PreserveReplace FetchMode = iota
	// Replace drops cached entries (within the segment) and inserts the response.
	Replace
	// Append inserts the response, the caller guarantees there is no id overlap.
	Append
	// PreserveAppend patches or inserts without pruning.
	PreserveAppend
)

// String implements the stringer interface.
func (m FetchMode) String() string {
	switch m {
	case PreserveReplace:
		return "preserve-replace"
	case Replace:
		return "replace"
	case Append:
		return "append"
	case PreserveAppend:
		return "preserve-append"
	}

	return fmt.Sprintf("fetchMode(%d)", int(m))
}

// ParseFetchMode parses the FetchMode.String representation.
func ParseFetchMode(s string) (FetchMode, error) {
	for _, m := range []FetchMode{PreserveReplace, Replace, Append, PreserveAppend} {
		if m.String() == s {
			return m, nil
		}
	}

	return 0, fmt.Errorf("fetchMode (%s): unknown", s)
}

type (
	// FetchOptions configures a collection reconciliation.
	FetchOptions struct {
		Mode FetchMode
		// Restricts the entries Replace / PreserveReplace may drop (nil: all entries)
		SegmentFilter func(m *Model) bool
	}

	// Serializer converts between the wire shape S and the cache shape.
	// IdFromResponse and IdFromFields must agree for the same resource.
	Serializer[S, Q any] interface {
		// Deserialize returns false if the resource should not exist client-side (e.g. filtered by permissions).
		Deserialize(res S, query Q, foreignKey, foreignKeyValue string) (Fields, bool)
		IdFromResponse(res S) string
		IdFromFields(fields Fields) string
	}
)

// Network capabilities. A resource type implements only the operations it supports.
type (
	Getter[S, Q any] interface {
		GetResource(ctx context.Context, id string, query Q) (S, error)
	}

	CollectionGetter[S, Q any] interface {
		GetCollection(ctx context.Context, query Q) ([]S, error)
	}

	Poster[S any] interface {
		PostResource(ctx context.Context, fields Fields) (S, error)
	}

	BatchPoster[S any] interface {
		PostResources(ctx context.Context, fields []Fields) ([]S, error)
	}

	Patcher[S any] interface {
		PatchResource(ctx context.Context, id string, changes Fields) (S, error)
	}

	BatchPatcher[S any] interface {
		PatchResources(ctx context.Context, ids []string, changes Fields) ([]S, error)
	}

	Deleter interface {
		DeleteResource(ctx context.Context, id string) error
	}

	BatchDeleter interface {
		DeleteResources(ctx context.Context, ids []string) error
	}

	// RelationshipGetter lists the resources whose foreignKey field equals foreignKeyValue (one-to-many).
	RelationshipGetter[S, Q any] interface {
		GetRelated(ctx context.Context, foreignKey, foreignKeyValue string, query Q) ([]S, error)
	}

	// AssociatedGetter lists the resources associated with the left key (many-to-many).
	AssociatedGetter[S, Q any] interface {
		GetAssociated(ctx context.Context, leftKey string, query Q) ([]S, error)
	}

	// Edges is the edge set FetchForManyToMany reconciles (implemented by AssociationStore).
	Edges interface {
		Contains(left, right string) bool
		Link(left, right string)
		Unlink(left, right string)
		RightKeys(left string) []string
	}
)
