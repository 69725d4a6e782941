package qdb

import (
	"context"
	"fmt"
)

// DonorQDB stores one donor record per resharding operation.
type DonorQDB interface {
	InsertDonorDocument(ctx context.Context, doc *DonorDocument) error
	GetDonorDocument(ctx context.Context, reshardingUUID string) (*DonorDocument, error)
	ListDonorDocuments(ctx context.Context) ([]*DonorDocument, error)
	UpdateDonorMutableState(ctx context.Context, reshardingUUID string, state *DonorMutableState) error
	// RemoveDonorDocument deletes the record. Removing an absent record succeeds.
	// onCommit, if not nil, runs once the removal is durable.
	RemoveDonorDocument(ctx context.Context, reshardingUUID string, onCommit func()) error
}

// CoordinatorQDB stores the coordinator's view of resharding operations.
type CoordinatorQDB interface {
	WriteCoordinatorDocument(ctx context.Context, doc *CoordinatorDocument) error
	GetCoordinatorDocument(ctx context.Context, reshardingUUID string) (*CoordinatorDocument, error)
	ListCoordinatorDocuments(ctx context.Context) ([]*CoordinatorDocument, error)
	// UpdateCoordinatorDocument sets the donor entry selected by filter to state.
	// It reports whether the filter matched.
	UpdateCoordinatorDocument(ctx context.Context, filter *CoordinatorFilter, state *DonorMutableState) (bool, error)
	// WatchCoordinatorDocuments streams every coordinator document write until ctx is done.
	WatchCoordinatorDocuments(ctx context.Context) (<-chan *CoordinatorDocument, error)
}

type RoutingQDB interface {
	WriteRoutingInfo(ctx context.Context, info *RoutingInfo) error
	GetRoutingInfo(ctx context.Context, nss string) (*RoutingInfo, error)
}

type QDB interface {
	DonorQDB
	CoordinatorQDB
	RoutingQDB
}

func NewQDB(qdbType string, addr string, backupPath string) (QDB, error) {
	switch qdbType {
	case "etcd":
		return NewEtcdQDB(addr)
	case "mem":
		return RestoreQDB(backupPath)
	default:
		return nil, fmt.Errorf("qdb implementation %s is invalid", qdbType)
	}
}
