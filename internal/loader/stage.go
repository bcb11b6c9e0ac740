package loader

import "fmt"

// Stage is one step of a load. Stages run strictly in declaration order and
// are never re-entered.
type Stage uint8

const (
	StageIdle Stage = iota
	StageProductDims
	StageLocationDims
	StageCustomerDim
	StageDateDims
	StageSalesFacts
	StageCommit
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageProductDims:
		return "product_dims"
	case StageLocationDims:
		return "location_dims"
	case StageCustomerDim:
		return "customer_dim"
	case StageDateDims:
		return "date_dims"
	case StageSalesFacts:
		return "sales_facts"
	case StageCommit:
		return "commit"
	default:
		return fmt.Sprintf("stage(%d)", s)
	}
}

// Stages returns the load stages in order.
func Stages() []Stage {
	return []Stage{StageProductDims, StageLocationDims, StageCustomerDim, StageDateDims, StageSalesFacts, StageCommit}
}

// stageMachine only moves forward by exactly one stage.
type stageMachine struct {
	cur Stage
}

func (m *stageMachine) enter(next Stage) error {
	if next != m.cur+1 || next > StageCommit {
		return fmt.Errorf("loader: illegal stage transition %s -> %s", m.cur, next)
	}
	m.cur = next
	return nil
}

func (m *stageMachine) current() Stage { return m.cur }
