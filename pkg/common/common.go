package common

import (
	"os"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/spf13/cast"
)

var idNode *snowflake.Node

func init() {
	nodeID := cast.ToInt64(os.Getenv("FLASHENG_NODE_ID"))
	if nodeID < 0 || nodeID > 1023 {
		nodeID = 0
	}
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		panic(err)
	}
	idNode = node
}

// UUIDint64 time ordered unique id
func UUIDint64() int64 {
	return idNode.Generate().Int64()
}

// ParseInt64 parses a positive base-10 identifier, 0 when invalid
func ParseInt64(s string) int64 {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
