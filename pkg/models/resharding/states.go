package resharding

import (
	"github.com/pg-sharding/reshard/pkg/models/spqrerror"
	"github.com/pg-sharding/reshard/qdb"
)

// DonorState is the donor's progress. Values are ordered: a state never
// moves to a smaller one, except that Error is only entered before BlockingWrites.
type DonorState int

const (
	DonorUnused DonorState = iota
	DonorPreparingToDonate
	DonorDonatingInitialData
	DonorDonatingOplogEntries
	DonorPreparingToBlockWrites
	DonorError
	DonorBlockingWrites
	DonorDone
)

var donorStates = []qdb.DonorState{
	DonorUnused:                 qdb.DonorUnused,
	DonorPreparingToDonate:      qdb.DonorPreparingToDonate,
	DonorDonatingInitialData:    qdb.DonorDonatingInitialData,
	DonorDonatingOplogEntries:   qdb.DonorDonatingOplogEntries,
	DonorPreparingToBlockWrites: qdb.DonorPreparingToBlockWrites,
	DonorError:                  qdb.DonorError,
	DonorBlockingWrites:         qdb.DonorBlockingWrites,
	DonorDone:                   qdb.DonorDone,
}

func (s DonorState) String() string {
	return string(DonorStateToDB(s))
}

func DonorStateToDB(s DonorState) qdb.DonorState {
	if s < 0 || int(s) >= len(donorStates) {
		panic("incorrect donor state")
	}
	return donorStates[s]
}

func DonorStateFromDB(s qdb.DonorState) (DonorState, error) {
	for i, v := range donorStates {
		if v == s {
			return DonorState(i), nil
		}
	}
	return DonorUnused, spqrerror.Newf(spqrerror.SPQR_METADATA_CORRUPTION, "unknown donor state \"%s\"", s)
}

var donorPredecessors = map[DonorState][]DonorState{
	DonorPreparingToDonate:      {DonorUnused},
	DonorDonatingInitialData:    {DonorUnused, DonorPreparingToDonate},
	DonorDonatingOplogEntries:   {DonorDonatingInitialData},
	DonorPreparingToBlockWrites: {DonorDonatingOplogEntries},
	DonorBlockingWrites:         {DonorPreparingToBlockWrites},
}

// CheckDonorTransition reports an invariant violation when a donor may not
// move from one state to another. Error is reachable from any state before
// BlockingWrites and Done from any state.
func CheckDonorTransition(from, to DonorState) error {
	switch to {
	case DonorDone:
		return nil
	case DonorError:
		if from < DonorBlockingWrites {
			return nil
		}
	default:
		for _, p := range donorPredecessors[to] {
			if p == from {
				return nil
			}
		}
	}
	return spqrerror.Newf(spqrerror.SPQR_INVARIANT_VIOLATION,
		"donor cannot transition from state %s to %s", from, to)
}

// CoordinatorState is the coordinator's broadcast progress.
type CoordinatorState int

const (
	CoordinatorUnused CoordinatorState = iota
	CoordinatorInitializing
	CoordinatorPreparingToDonate
	CoordinatorCloning
	CoordinatorApplying
	CoordinatorBlockingWrites
	CoordinatorDecisionPersisted
	CoordinatorDone
)

var coordinatorStates = []qdb.CoordinatorState{
	CoordinatorUnused:            qdb.CoordinatorUnused,
	CoordinatorInitializing:      qdb.CoordinatorInitializing,
	CoordinatorPreparingToDonate: qdb.CoordinatorPreparingToDonate,
	CoordinatorCloning:           qdb.CoordinatorCloning,
	CoordinatorApplying:          qdb.CoordinatorApplying,
	CoordinatorBlockingWrites:    qdb.CoordinatorBlockingWrites,
	CoordinatorDecisionPersisted: qdb.CoordinatorDecisionPersisted,
	CoordinatorDone:              qdb.CoordinatorDone,
}

func (s CoordinatorState) String() string {
	return string(CoordinatorStateToDB(s))
}

func CoordinatorStateToDB(s CoordinatorState) qdb.CoordinatorState {
	if s < 0 || int(s) >= len(coordinatorStates) {
		panic("incorrect coordinator state")
	}
	return coordinatorStates[s]
}

func CoordinatorStateFromDB(s qdb.CoordinatorState) (CoordinatorState, error) {
	for i, v := range coordinatorStates {
		if v == s {
			return CoordinatorState(i), nil
		}
	}
	return CoordinatorUnused, spqrerror.Newf(spqrerror.SPQR_METADATA_CORRUPTION, "unknown coordinator state \"%s\"", s)
}
