package utilities

import (
	"os"
	"strconv"
	"sync"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewUUIDv7 returns a time-sortable UUIDv7 string.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// IDs hands out identifiers for every table. Ledger rows get snowflake IDs
// so ActivityID order follows insertion time; reminders get UUIDv7; all
// other rows get KSUIDs.
type IDs struct {
	once   sync.Once
	nodeID int64
	node   *snowflake.Node
}

// NewIDs builds an ID source for the given snowflake node.
func NewIDs(nodeID int64) *IDs {
	return &IDs{nodeID: nodeID}
}

// NewIDsFromEnv reads the snowflake node from SNOWFLAKE_NODE, defaulting to 1.
func NewIDsFromEnv() *IDs {
	nodeID := int64(1)
	if v := os.Getenv("SNOWFLAKE_NODE"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			nodeID = n
		}
	}
	return NewIDs(nodeID)
}

// Activity returns a snowflake ID, falling back to a KSUID when the node
// cannot be initialised.
func (g *IDs) Activity() string {
	g.once.Do(func() {
		n, err := snowflake.NewNode(g.nodeID)
		if err == nil {
			g.node = n
		}
	})
	if g.node == nil {
		return NewKSUID()
	}
	return g.node.Generate().String()
}

func (g *IDs) Reminder() string { return NewUUIDv7() }

func (g *IDs) Row() string { return NewKSUID() }
