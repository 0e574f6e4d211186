package typo

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"

	"github.com/devflowinc/trieve-sub001/internal/errs"
)

// wireNode is one flattened BK-tree node: its word/frequency, plus enough
// structure (ParentIndex, Dist) to rebuild the tree from a flat BFS walk
// (spec §4.I: "flattened as BFS with parent-index/distance per node").
// The root has ParentIndex -1.
type wireNode struct {
	Word        string `json:"w"`
	Freq        int    `json:"f"`
	ParentIndex int    `json:"p"`
	Dist        int    `json:"d"`
}

// Serialize flattens t via BFS, JSON-encodes the flat node list, and
// gzip-compresses it for storage in the shared BK-tree cache (spec §4.I).
func Serialize(t *Tree) ([]byte, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.root == nil {
		return gzipBytes(nil)
	}

	var wire []wireNode
	type queued struct {
		node        *Node
		parentIndex int
		dist        int
	}
	queue := []queued{{node: t.root, parentIndex: -1, dist: 0}}
	for len(queue) > 0 {
		q := queue[0]
		queue = queue[1:]
		idx := len(wire)
		wire = append(wire, wireNode{Word: q.node.Word, Freq: q.node.Freq, ParentIndex: q.parentIndex, Dist: q.dist})
		for _, dist := range sortedDistKeys(q.node.Children) {
			queue = append(queue, queued{node: q.node.Children[dist], parentIndex: idx, dist: dist})
		}
	}

	raw, err := json.Marshal(wire)
	if err != nil {
		return nil, errs.Internal("bktree_marshal", "failed to marshal bk-tree", err)
	}
	return gzipBytes(raw)
}

// Deserialize rebuilds a Tree from Serialize's output.
func Deserialize(blob []byte) (*Tree, error) {
	raw, err := gunzipBytes(blob)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return NewTree(), nil
	}

	var wire []wireNode
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, errs.Internal("bktree_unmarshal", "failed to unmarshal bk-tree", err)
	}

	t := NewTree()
	if len(wire) == 0 {
		return t, nil
	}

	nodes := make([]*Node, len(wire))
	for i, w := range wire {
		nodes[i] = &Node{Word: w.Word, Freq: w.Freq, Children: map[int]*Node{}}
	}
	t.root = nodes[0]
	t.size = len(wire)
	for i := 1; i < len(wire); i++ {
		w := wire[i]
		nodes[w.ParentIndex].Children[w.Dist] = nodes[i]
	}
	return t, nil
}

func gzipBytes(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, errs.Internal("bktree_gzip", "failed to compress bk-tree", err)
	}
	if err := zw.Close(); err != nil {
		return nil, errs.Internal("bktree_gzip", "failed to close bk-tree gzip writer", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, errs.Internal("bktree_gunzip", "failed to open bk-tree gzip reader", err)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return nil, errs.Internal("bktree_gunzip", "failed to decompress bk-tree", err)
	}
	return raw, nil
}
