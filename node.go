package cityflow

import (
	"fmt"

	"github.com/paulmach/orb"
)

// NodeID is a stable identifier of an intersection or a stop.
// Negative identifiers are reserved for transit overlay nodes.
type NodeID int64

type Node struct {
	ID       NodeID    `json:"id" yaml:"id"`
	Kind     NodeKind  `json:"kind" yaml:"kind"`
	Position orb.Point `json:"position" yaml:"position"`
	Name     string    `json:"name,omitempty" yaml:"name,omitempty"`
}

func (node Node) String() string {
	return fmt.Sprintf("Node %d (%s) at [%.2f, %.2f]", node.ID, node.Kind, node.Position.X(), node.Position.Y())
}

type NodeKind uint16

const (
	NODE_INTERSECTION = NodeKind(iota + 1)
	NODE_STOP
	NODE_ROUTE_STOP
)

var nodeKindNames = [...]string{"intersection", "stop", "route_stop"}

func (iotaIdx NodeKind) String() string {
	if iotaIdx == 0 || int(iotaIdx) > len(nodeKindNames) {
		return "undefined"
	}
	return nodeKindNames[iotaIdx-1]
}

func (iotaIdx NodeKind) MarshalText() ([]byte, error) {
	return []byte(iotaIdx.String()), nil
}

func (iotaIdx *NodeKind) UnmarshalText(text []byte) error {
	if len(text) == 0 || string(text) == "undefined" {
		*iotaIdx = 0
		return nil
	}
	for i, name := range nodeKindNames {
		if name == string(text) {
			*iotaIdx = NodeKind(i + 1)
			return nil
		}
	}
	return fmt.Errorf("Unknown node kind '%s'", string(text))
}
