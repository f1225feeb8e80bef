package sync

import "github.com/codectx/codectx/internal/apperrors"

// State is one repository's position in the sync state machine.
type State string

const (
	// StateNotSynced is the initial state: the repo is registered but has
	// never been prepared or indexed.
	StateNotSynced State = "not_synced"
	// StateSyncing means a prepare+index run is currently in flight.
	StateSyncing State = "syncing"
	// StateFullySynced means the working tree was prepared and every
	// discovered file was indexed without error.
	StateFullySynced State = "fully_synced"
	// StateLocalOnly means the working tree was prepared from a local
	// path with no configured remote; indexing still ran normally.
	StateLocalOnly State = "local_only"
	// StateLocalIndexedRemoteFailed means the working tree's local copy
	// was indexed from its last-known-good state, but the most recent
	// fetch/checkout against the remote failed.
	StateLocalIndexedRemoteFailed State = "local_indexed_remote_failed"
	// StateFailed means preparation or indexing failed and no usable
	// index exists for this repo/branch.
	StateFailed State = "failed"
)

// ErrorType classifies why a sync run ended in StateFailed or
// StateLocalIndexedRemoteFailed, so callers can decide whether retrying
// is worthwhile.
type ErrorType string

const (
	// ErrorTypeNone means the run succeeded.
	ErrorTypeNone ErrorType = ""
	// ErrorTypeAuth means the remote rejected credentials.
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeNetwork means the remote was unreachable.
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeBranchNotFound means the requested branch doesn't exist
	// locally or on the remote.
	ErrorTypeBranchNotFound ErrorType = "branch_not_found"
	// ErrorTypeEmbedding means the embedding provider failed mid-run.
	ErrorTypeEmbedding ErrorType = "embedding"
	// ErrorTypeVectorStore means the vector store rejected writes.
	ErrorTypeVectorStore ErrorType = "vector_store"
	// ErrorTypeOther is the catch-all for anything not classified above.
	ErrorTypeOther ErrorType = "other"
)

// classify maps an error's apperrors.Kind to the ErrorType a RepoState
// surfaces to callers. Kinds with no special handling fall through to
// ErrorTypeOther.
func classify(err error) ErrorType {
	switch apperrors.KindOf(err) {
	case apperrors.KindGit:
		return ErrorTypeNetwork
	case apperrors.KindNotFound:
		return ErrorTypeBranchNotFound
	case apperrors.KindEmbedding:
		return ErrorTypeEmbedding
	case apperrors.KindVectorStore:
		return ErrorTypeVectorStore
	case apperrors.KindAccessDenied:
		return ErrorTypeAuth
	default:
		return ErrorTypeOther
	}
}
