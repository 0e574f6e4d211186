// Package typo implements the Typo Corrector (spec §4.I): a per-dataset
// BK-tree of (word, frequency) keyed by Levenshtein distance, an English
// lexicon filter, and the scored correction algorithm. The tree shape
// (Insert by recursive distance descent, Search by distance-bounded
// subtree pruning) is the standard BK-tree construction; no pack example
// carries one, so this is grounded directly on spec §4.I/§9 rather than
// on teacher code (documented in DESIGN.md as a stdlib data structure, not
// an ambient concern a library substitutes for).
package typo

import "sync"

// Node is one entry in the BK-tree: a word, its observed frequency, and
// children keyed by their Levenshtein distance from this node.
type Node struct {
	Word     string
	Freq     int
	Children map[int]*Node
}

// Tree is a per-dataset BK-tree, safe for concurrent reads once built
// (spec §5: "read-mostly, copy-on-write; writers replace the entry
// atomically" — callers never mutate a Tree once it is published to the
// cache, they build a new one and swap).
type Tree struct {
	root *Node
	mu   sync.RWMutex
	size int
}

func NewTree() *Tree {
	return &Tree{}
}

// Insert adds word with the given frequency, or, if word already exists,
// adds freq to its existing count (spec §4.I build job: "tokenizes,
// counts, and inserts").
func (t *Tree) Insert(word string, freq int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.root == nil {
		t.root = &Node{Word: word, Freq: freq, Children: map[int]*Node{}}
		t.size++
		return
	}
	insertNode(t.root, word, freq, &t.size)
}

func insertNode(n *Node, word string, freq int, size *int) {
	for {
		if n.Word == word {
			n.Freq += freq
			return
		}
		d := Levenshtein(n.Word, word)
		if d == 0 {
			n.Freq += freq
			return
		}
		child, ok := n.Children[d]
		if !ok {
			n.Children[d] = &Node{Word: word, Freq: freq, Children: map[int]*Node{}}
			*size++
			return
		}
		n = child
	}
}

// Size returns the number of distinct words in the tree.
func (t *Tree) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.size
}

// Lookup returns the frequency of an exact word match and whether it was
// found, used by the correction algorithm's step 3 ("if the word appears
// in the tree with frequency > 0").
func (t *Tree) Lookup(word string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return 0, false
	}
	n := t.root
	for {
		if n.Word == word {
			return n.Freq, true
		}
		d := Levenshtein(n.Word, word)
		if d == 0 {
			return n.Freq, true
		}
		child, ok := n.Children[d]
		if !ok {
			return 0, false
		}
		n = child
	}
}

// Candidate is one BK-tree match within a bounded distance of a query.
type Candidate struct {
	Word string
	Freq int
	Dist int
}

// candidateThreshold is the sibling-subtree frontier size above which
// Search fans sibling traversals out across goroutines (spec §4.I: "The
// traversal parallelizes across sibling subtrees when the frontier
// exceeds 1,000 candidates.").
const candidateThreshold = 1000

// Search returns every word within maxDist of query, using the triangle
// inequality to prune subtrees whose distance band cannot possibly
// contain a match (spec §4.I step 5 consumes this candidate set).
func (t *Tree) Search(query string, maxDist int) []Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return nil
	}

	var out []Candidate
	var mu sync.Mutex
	var wg sync.WaitGroup

	var walk func(n *Node, parallel bool)
	walk = func(n *Node, parallel bool) {
		d := Levenshtein(n.Word, query)
		if d <= maxDist {
			mu.Lock()
			out = append(out, Candidate{Word: n.Word, Freq: n.Freq, Dist: d})
			mu.Unlock()
		}

		lo, hi := d-maxDist, d+maxDist
		var children []*Node
		for dist, child := range n.Children {
			if dist >= lo && dist <= hi {
				children = append(children, child)
			}
		}

		if len(children) > candidateThreshold {
			for _, c := range children {
				wg.Add(1)
				go func(c *Node) {
					defer wg.Done()
					walk(c, true)
				}(c)
			}
			if parallel {
				return
			}
			wg.Wait()
			return
		}

		for _, c := range children {
			walk(c, parallel)
		}
	}
	walk(t.root, false)
	wg.Wait()
	return out
}

// Words returns every (word, frequency) pair in the tree via a BFS
// traversal, the same order Serialize uses, so round-trip tests can
// compare the flattened set directly (spec §8: "A BK-tree serialized
// then deserialized recovers the same set of (word, freq) pairs.").
func (t *Tree) Words() []Candidate {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.root == nil {
		return nil
	}
	var out []Candidate
	queue := []*Node{t.root}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, Candidate{Word: n.Word, Freq: n.Freq})
		for _, dist := range sortedDistKeys(n.Children) {
			queue = append(queue, n.Children[dist])
		}
	}
	return out
}

func sortedDistKeys(m map[int]*Node) []int {
	keys := make([]int, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}
