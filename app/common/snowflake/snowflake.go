package snowflake

import (
	"hash/fnv"
	"os"
	"sync"

	bwsnowflake "github.com/bwmarrin/snowflake"
)

var (
	mu   sync.Mutex
	node *bwsnowflake.Node
)

// SetNodeID overrides the hostname derived node id (0-1023). Call once at bootstrap.
func SetNodeID(id int64) error {
	n, err := bwsnowflake.NewNode(id & 0x3FF)
	if err != nil {
		return err
	}
	mu.Lock()
	node = n
	mu.Unlock()
	return nil
}

func current() *bwsnowflake.Node {
	mu.Lock()
	defer mu.Unlock()
	if node != nil {
		return node
	}
	// derive node from hostname hash (10 bits)
	host, _ := os.Hostname()
	h := fnv.New32a()
	_, _ = h.Write([]byte(host))
	n, err := bwsnowflake.NewNode(int64(h.Sum32()) & 0x3FF)
	if err != nil {
		n, _ = bwsnowflake.NewNode(1)
	}
	node = n
	return node
}

// Next returns a new snowflake id.
func Next() int64 {
	return current().Generate().Int64()
}

// NextString returns a new snowflake id in base 10.
func NextString() string {
	return current().Generate().String()
}
