package topology

import (
	"fmt"
	"sort"

	"github.com/user/topomon/internal/model"
)

// Hierarchy indexes devices by id and by parent for traversal. Parent
// chains are not guaranteed acyclic; every walk carries a visited set and
// stops at the first repeated id.
type Hierarchy struct {
	devices  map[int64]model.Device
	children map[int64][]int64
}

// TreeNode is one device in a descendant subtree.
type TreeNode struct {
	Device   model.Device `json:"device"`
	Children []*TreeNode  `json:"children"`
}

// NewHierarchy builds the index.
func NewHierarchy(devices []model.Device) *Hierarchy {
	h := &Hierarchy{
		devices:  make(map[int64]model.Device, len(devices)),
		children: make(map[int64][]int64),
	}
	for _, d := range devices {
		h.devices[d.ID] = d
		if d.ParentID != nil {
			h.children[*d.ParentID] = append(h.children[*d.ParentID], d.ID)
		}
	}
	for _, ids := range h.children {
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	}
	return h
}

// Ancestors returns the parent chain of id, nearest first. A missing
// parent ends the chain.
func (h *Hierarchy) Ancestors(id int64) ([]model.Device, error) {
	d, ok := h.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, model.ErrNotFound)
	}

	var chain []model.Device
	visited := map[int64]bool{id: true}
	for d.ParentID != nil {
		pid := *d.ParentID
		if visited[pid] {
			break
		}
		visited[pid] = true
		parent, ok := h.devices[pid]
		if !ok {
			break
		}
		chain = append(chain, parent)
		d = parent
	}
	return chain, nil
}

// Subtree returns id and all its descendants.
func (h *Hierarchy) Subtree(id int64) (*TreeNode, error) {
	d, ok := h.devices[id]
	if !ok {
		return nil, fmt.Errorf("device %d: %w", id, model.ErrNotFound)
	}
	visited := map[int64]bool{}
	return h.expand(d, visited), nil
}

func (h *Hierarchy) expand(d model.Device, visited map[int64]bool) *TreeNode {
	visited[d.ID] = true
	node := &TreeNode{Device: d, Children: []*TreeNode{}}
	for _, cid := range h.children[d.ID] {
		if visited[cid] {
			continue
		}
		node.Children = append(node.Children, h.expand(h.devices[cid], visited))
	}
	return node
}

// Descendants returns the ids below id, in depth-first order.
func (h *Hierarchy) Descendants(id int64) []int64 {
	var out []int64
	visited := map[int64]bool{id: true}
	stack := append([]int64(nil), h.children[id]...)
	for len(stack) > 0 {
		cur := stack[0]
		stack = stack[1:]
		if visited[cur] {
			continue
		}
		visited[cur] = true
		out = append(out, cur)
		stack = append(append([]int64(nil), h.children[cur]...), stack...)
	}
	return out
}
