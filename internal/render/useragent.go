package render

import "sync"

// agentRing rotates through user agent strings, one per browser launch.
type agentRing struct {
	agents []string
	mu     sync.Mutex
	idx    int
}

func newAgentRing() *agentRing {
	return &agentRing{
		agents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		},
	}
}

// next returns an agent string, rotating sequentially.
func (r *agentRing) next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	agent := r.agents[r.idx]
	r.idx = (r.idx + 1) % len(r.agents)
	return agent
}
