package flow

import (
	"context"
	"sync"
)

// mockGenerator is a scripted Generator: each call pops the next response, and
// the final response repeats once the script runs out.
type mockGenerator struct {
	mu        sync.Mutex
	responses []scriptedResponse
	calls     int
	lastUser  string
	lastSys   string
}

type scriptedResponse struct {
	text string
	err  error
}

func (m *mockGenerator) GeneratePrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastSys = systemPrompt
	m.lastUser = userPrompt

	if len(m.responses) == 0 {
		return "", nil
	}
	idx := m.calls - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	r := m.responses[idx]
	return r.text, r.err
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
