package resharding

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pg-sharding/reshard/pkg/models/hashfunction"
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/pkg/oplog"
	"github.com/pg-sharding/reshard/qdb"
)

// Namespace is a schema-qualified relation name.
type Namespace struct {
	Schema   string
	Relation string
}

func (n Namespace) String() string {
	if n.Schema == "" {
		return n.Relation
	}
	return n.Schema + "." + n.Relation
}

func (n Namespace) IsEmpty() bool {
	return n.Relation == ""
}

func ParseNamespace(s string) (Namespace, error) {
	parts := strings.Split(s, ".")
	switch {
	case len(parts) == 1 && parts[0] != "":
		return Namespace{Relation: parts[0]}, nil
	case len(parts) == 2 && parts[0] != "" && parts[1] != "":
		return Namespace{Schema: parts[0], Relation: parts[1]}, nil
	default:
		return Namespace{}, spqrerror.Newf(spqrerror.SPQR_INVALID_REQUEST, "invalid namespace \"%s\"", s)
	}
}

type ShardKeyColumn struct {
	Name         string
	Type         string
	HashFunction hashfunction.HashFunctionType
}

// ShardKeyPattern is the ordered column list of a shard key.
type ShardKeyPattern struct {
	Columns []ShardKeyColumn
}

func (p ShardKeyPattern) String() string {
	cols := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		cols[i] = fmt.Sprintf("%s: %s", c.Name, hashfunction.ToString(c.HashFunction))
	}
	return "{" + strings.Join(cols, ", ") + "}"
}

// CommonMetadata is fixed when a resharding operation is created.
type CommonMetadata struct {
	ReshardingUUID    uuid.UUID
	SourceNss         Namespace
	SourceUUID        uuid.UUID
	TempReshardingNss Namespace
	ReshardingKey     ShardKeyPattern
}

// DonorShardContext is the mutable progress of a donor.
// MinFetchTimestamp, BytesToClone and DocumentsToClone are set together,
// on entering DonatingInitialData, and never change afterwards.
type DonorShardContext struct {
	State             DonorState
	MinFetchTimestamp *oplog.Timestamp
	BytesToClone      *int64
	DocumentsToClone  *int64
	AbortReason       *spqrerror.AbortReason
}

// Validate checks that the fetch snapshot fields are all set or all unset.
func (c *DonorShardContext) Validate() error {
	set := 0
	if c.MinFetchTimestamp != nil {
		set++
	}
	if c.BytesToClone != nil {
		set++
	}
	if c.DocumentsToClone != nil {
		set++
	}
	if set != 0 && set != 3 {
		return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
			"donor state %s has a partial fetch snapshot", c.State)
	}
	if set == 0 && c.State >= DonorDonatingInitialData && c.State <= DonorPreparingToBlockWrites {
		return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
			"donor state %s has no fetch snapshot", c.State)
	}
	return nil
}

type DonorDocument struct {
	CommonMetadata
	RecipientShards []string
	MutableState    DonorShardContext
}

// CoordinatorFields is the part of the coordinator's state broadcast to donors.
type CoordinatorFields struct {
	ReshardingUUID uuid.UUID
	State          CoordinatorState
	AbortReason    *spqrerror.AbortReason
}

func ShardKeyToDB(p ShardKeyPattern) []qdb.ShardKeyColumn {
	res := make([]qdb.ShardKeyColumn, len(p.Columns))
	for i, c := range p.Columns {
		res[i] = qdb.ShardKeyColumn{
			Name:         c.Name,
			Type:         c.Type,
			HashFunction: hashfunction.ToString(c.HashFunction),
		}
	}
	return res
}

func ShardKeyFromDB(cols []qdb.ShardKeyColumn) (ShardKeyPattern, error) {
	res := ShardKeyPattern{Columns: make([]ShardKeyColumn, len(cols))}
	for i, c := range cols {
		hf, err := hashfunction.HashFunctionByName(c.HashFunction)
		if err != nil {
			return ShardKeyPattern{}, spqrerror.Wrap(spqrerror.SPQR_METADATA_CORRUPTION, err)
		}
		res.Columns[i] = ShardKeyColumn{
			Name:         c.Name,
			Type:         c.Type,
			HashFunction: hf,
		}
	}
	return res, nil
}

func DonorShardContextToDB(c *DonorShardContext) *qdb.DonorMutableState {
	res := &qdb.DonorMutableState{
		State:            DonorStateToDB(c.State),
		BytesToClone:     c.BytesToClone,
		DocumentsToClone: c.DocumentsToClone,
		AbortReason:      c.AbortReason,
	}
	if c.MinFetchTimestamp != nil {
		ts := uint64(*c.MinFetchTimestamp)
		res.MinFetchTimestamp = &ts
	}
	return res
}

func DonorShardContextFromDB(s *qdb.DonorMutableState) (*DonorShardContext, error) {
	state, err := DonorStateFromDB(s.State)
	if err != nil {
		return nil, err
	}
	res := &DonorShardContext{
		State:            state,
		BytesToClone:     s.BytesToClone,
		DocumentsToClone: s.DocumentsToClone,
		AbortReason:      s.AbortReason,
	}
	if s.MinFetchTimestamp != nil {
		ts := oplog.Timestamp(*s.MinFetchTimestamp)
		res.MinFetchTimestamp = &ts
	}
	return res, nil
}

func DonorDocumentToDB(doc *DonorDocument) *qdb.DonorDocument {
	return &qdb.DonorDocument{
		ReshardingUUID:    doc.ReshardingUUID.String(),
		SourceNss:         doc.SourceNss.String(),
		SourceUUID:        doc.SourceUUID.String(),
		TempReshardingNss: doc.TempReshardingNss.String(),
		ReshardingKey:     ShardKeyToDB(doc.ReshardingKey),
		RecipientShards:   doc.RecipientShards,
		MutableState:      *DonorShardContextToDB(&doc.MutableState),
	}
}

func DonorDocumentFromDB(doc *qdb.DonorDocument) (*DonorDocument, error) {
	id, err := uuid.Parse(doc.ReshardingUUID)
	if err != nil {
		return nil, spqrerror.Wrap(spqrerror.SPQR_METADATA_CORRUPTION, err)
	}
	sourceUUID, err := uuid.Parse(doc.SourceUUID)
	if err != nil {
		return nil, spqrerror.Wrap(spqrerror.SPQR_METADATA_CORRUPTION, err)
	}
	sourceNss, err := ParseNamespace(doc.SourceNss)
	if err != nil {
		return nil, err
	}
	tempNss, err := ParseNamespace(doc.TempReshardingNss)
	if err != nil {
		return nil, err
	}
	key, err := ShardKeyFromDB(doc.ReshardingKey)
	if err != nil {
		return nil, err
	}
	state, err := DonorShardContextFromDB(&doc.MutableState)
	if err != nil {
		return nil, err
	}
	return &DonorDocument{
		CommonMetadata: CommonMetadata{
			ReshardingUUID:    id,
			SourceNss:         sourceNss,
			SourceUUID:        sourceUUID,
			TempReshardingNss: tempNss,
			ReshardingKey:     key,
		},
		RecipientShards: doc.RecipientShards,
		MutableState:    *state,
	}, nil
}

func CoordinatorFieldsFromDB(doc *qdb.CoordinatorDocument) (*CoordinatorFields, error) {
	id, err := uuid.Parse(doc.ReshardingUUID)
	if err != nil {
		return nil, spqrerror.Wrap(spqrerror.SPQR_METADATA_CORRUPTION, err)
	}
	state, err := CoordinatorStateFromDB(doc.State)
	if err != nil {
		return nil, err
	}
	return &CoordinatorFields{
		ReshardingUUID: id,
		State:          state,
		AbortReason:    doc.AbortReason,
	}, nil
}
