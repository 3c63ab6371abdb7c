package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/scrypster/lingua/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type policySink struct {
	mu       sync.Mutex
	policies []config.FeaturePolicy
}

func (s *policySink) set(p config.FeaturePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies = append(s.policies, p)
}

func (s *policySink) last() config.FeaturePolicy {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.policies) == 0 {
		return nil
	}
	return s.policies[len(s.policies)-1]
}

func TestPolicyWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features:\n  translate:\n    ttl: none\n"), 0o600))

	sink := &policySink{}
	w := config.NewPolicyWatcher(path, sink.set, nil)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	require.NoError(t, os.WriteFile(path, []byte("features:\n  translate:\n    ttl: 2h\n"), 0o600))
	require.Eventually(t, func() bool {
		p := sink.last()
		return p != nil && p.Rule(config.FeatureTranslate).TTL == 2*time.Hour
	}, 5*time.Second, 10*time.Millisecond)

	// Writing a sibling file is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o600))

	// An invalid policy keeps the previous one.
	tmp := filepath.Join(dir, ".policy.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("features:\n  teleport:\n    ttl: 1h\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 2*time.Hour, sink.last().Rule(config.FeatureTranslate).TTL)
}

func TestPolicyWatcher_ReloadsAfterRenameSave(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("features: {}\n"), 0o600))

	sink := &policySink{}
	w := config.NewPolicyWatcher(path, sink.set, nil)
	require.NoError(t, w.Start())
	t.Cleanup(w.Stop)

	tmp := filepath.Join(dir, ".policy.yaml.tmp")
	require.NoError(t, os.WriteFile(tmp, []byte("features:\n  smart_replies:\n    max_length: 42\n"), 0o600))
	require.NoError(t, os.Rename(tmp, path))

	require.Eventually(t, func() bool {
		p := sink.last()
		return p != nil && p.Rule(config.FeatureSmartReplies).MaxLength == 42
	}, 5*time.Second, 10*time.Millisecond)
}

func TestPolicyWatcher_StartFailsForMissingDirectory(t *testing.T) {
	w := config.NewPolicyWatcher(filepath.Join(t.TempDir(), "missing", "policy.yaml"), func(config.FeaturePolicy) {}, nil)
	assert.Error(t, w.Start())
	w.Stop()
}
