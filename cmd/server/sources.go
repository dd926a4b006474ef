package main

import (
	"context"
	"log"
	"sync"

	"tides/internal/config"
	"tides/internal/objectstore"
	"tides/internal/services"
)

// peerPool keeps the opened peer backends so a reload only reconnects the
// sources whose URL changed
type peerPool struct {
	primary services.Source
	open    func(ctx context.Context, rawURL string) (objectstore.Backend, error)

	mu    sync.Mutex
	peers map[string]openPeer
}

type openPeer struct {
	url    string
	source services.Source
}

func newPeerPool(primary services.Source) *peerPool {
	return &peerPool{
		primary: primary,
		open:    objectstore.Open,
		peers:   make(map[string]openPeer),
	}
}

// Apply opens the listed peers and returns the resolver order: primary first,
// then peers in file order. Peers that fail to open are skipped.
func (p *peerPool) Apply(ctx context.Context, specs []config.SourceSpec) []services.Source {
	p.mu.Lock()
	defer p.mu.Unlock()

	sources := []services.Source{p.primary}
	next := make(map[string]openPeer, len(specs))

	for _, spec := range specs {
		if existing, ok := p.peers[spec.ID]; ok && existing.url == spec.URL {
			next[spec.ID] = existing
			sources = append(sources, existing.source)
			continue
		}

		backend, err := p.open(ctx, spec.URL)
		if err != nil {
			log.Printf("⚠️ [SOURCES] Skipping peer %s: %v", spec.ID, err)
			continue
		}
		peer := openPeer{url: spec.URL, source: services.NewSource(spec.ID, services.NewDocumentStore(backend))}
		next[spec.ID] = peer
		sources = append(sources, peer.source)
		log.Printf("✅ [SOURCES] Peer %s attached (%s)", spec.ID, backend.Name())
	}

	// Close peers that were dropped or re-pointed
	for id, old := range p.peers {
		if cur, ok := next[id]; ok && cur.url == old.url {
			continue
		}
		if err := objectstore.Close(ctx, old.source.Docs.Backend()); err != nil {
			log.Printf("⚠️ [SOURCES] Failed to close peer %s: %v", id, err)
		}
	}

	p.peers = next
	return sources
}

// Close releases every peer backend
func (p *peerPool) Close(ctx context.Context) {
	p.Apply(ctx, nil)
}
