package decentchat

import (
	"sync"

	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/models"
)

// watchMap subscribes to a parent node whose fields link to child nodes, and to every child
// as it appears. fn receives the field key and the child's latest copy.
func watchMap(g Graph, soul string, fn func(key string, child *graph.Node)) func() {
	var (
		mu       sync.Mutex
		stopped  bool
		children = make(map[string]func())
	)

	stopParent := g.On(soul, func(parent *graph.Node) {
		if parent == nil {
			return
		}
		for _, key := range parent.Fields() {
			if key == models.Sentinel {
				continue
			}
			childSoul, ok := parent.Link(key)
			if !ok {
				continue
			}

			mu.Lock()
			if stopped || children[key] != nil {
				mu.Unlock()
				continue
			}
			children[key] = func() {}
			mu.Unlock()

			k := key
			cancel := g.On(childSoul, func(child *graph.Node) {
				if child != nil {
					fn(k, child)
				}
			})

			mu.Lock()
			if stopped {
				mu.Unlock()
				cancel()
				continue
			}
			children[key] = cancel
			mu.Unlock()
		}
	})

	return func() {
		stopParent()
		mu.Lock()
		stopped = true
		cancels := make([]func(), 0, len(children))
		for _, cancel := range children {
			cancels = append(cancels, cancel)
		}
		mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
	}
}
