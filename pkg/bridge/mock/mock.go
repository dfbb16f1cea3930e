// Package mock provides a test double for the bridge.Bridge interface.
package mock

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/orakle-ai/orakle/pkg/bridge"
)

// TestSkillKeyCall records a single invocation of TestSkillKey.
type TestSkillKeyCall struct {
	// Service is the service name passed to TestSkillKey.
	Service string
	// Keys is the key map passed to TestSkillKey.
	Keys map[string]string
}

// Bridge is a mock implementation of bridge.Bridge.
type Bridge struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// TestSkillKeyResult is returned by TestSkillKey.
	TestSkillKeyResult *bridge.ProbeResult

	// TestSkillKeyErr, if non-nil, is returned as the error from TestSkillKey.
	TestSkillKeyErr error

	// HardwareResult is returned by HardwareAcceleration.
	HardwareResult json.RawMessage

	// HardwareErr, if non-nil, is returned as the error from
	// HardwareAcceleration.
	HardwareErr error

	// HealthErr, if non-nil, is returned as the error from Health.
	HealthErr error

	// --- Call records ---

	// TestSkillKeyCalls records every call to TestSkillKey in order.
	TestSkillKeyCalls []TestSkillKeyCall

	// HardwareCalls counts calls to HardwareAcceleration.
	HardwareCalls int

	// HealthCalls counts calls to Health.
	HealthCalls int
}

// TestSkillKey records the call and returns the configured result.
func (b *Bridge) TestSkillKey(ctx context.Context, service string, keys map[string]string) (*bridge.ProbeResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.TestSkillKeyCalls = append(b.TestSkillKeyCalls, TestSkillKeyCall{Service: service, Keys: keys})
	if b.TestSkillKeyErr != nil {
		return nil, b.TestSkillKeyErr
	}
	if b.TestSkillKeyResult != nil {
		return b.TestSkillKeyResult, nil
	}
	return &bridge.ProbeResult{Success: true, Message: "ok"}, nil
}

// HardwareAcceleration records the call and returns the configured result.
func (b *Bridge) HardwareAcceleration(ctx context.Context) (json.RawMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.HardwareCalls++
	if b.HardwareErr != nil {
		return nil, b.HardwareErr
	}
	if b.HardwareResult != nil {
		return b.HardwareResult, nil
	}
	return json.RawMessage(`{}`), nil
}

// Health records the call and returns HealthErr.
func (b *Bridge) Health(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.HealthCalls++
	return b.HealthErr
}

// Reset clears all recorded calls. Thread-safe.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.TestSkillKeyCalls = nil
	b.HardwareCalls = 0
	b.HealthCalls = 0
}

// Ensure Bridge implements bridge.Bridge at compile time.
var _ bridge.Bridge = (*Bridge)(nil)
