package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseFormalityLevel(t *testing.T) {
	tests := []struct {
		in    string
		want  FormalityLevel
		valid bool
	}{
		{"formal", FormalityFormal, true},
		{"Very Formal", FormalityVeryFormal, true},
		{"very-casual", FormalityVeryCasual, true},
		{" neutral ", FormalityNeutral, true},
		{"super_formal", FormalityLevel("super_formal"), false},
		{"", FormalityLevel(""), false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseFormalityLevel(tt.in)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormalityLevel_RankOrdering(t *testing.T) {
	for i := 1; i < len(FormalityLevels); i++ {
		assert.Greater(t, FormalityLevels[i-1].Rank(), FormalityLevels[i].Rank(),
			"%s must rank above %s", FormalityLevels[i-1], FormalityLevels[i])
	}
	assert.Equal(t, -1, FormalityLevel("loud").Rank())
}

func TestCachedEntry_Expired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Hour)

	assert.False(t, (&CachedEntry{}).Expired(now), "no TTL never expires")
	assert.True(t, (&CachedEntry{ExpiresAt: &past}).Expired(now))
	assert.True(t, (&CachedEntry{ExpiresAt: &now}).Expired(now))
	assert.False(t, (&CachedEntry{ExpiresAt: &future}).Expired(now))
}

func TestAccessScope_Contains(t *testing.T) {
	scope := AccessScope{UserID: "u1", ConversationIDs: []string{"c1", "c2"}}
	assert.True(t, scope.Contains("c1"))
	assert.False(t, scope.Contains("c3"))
	assert.False(t, scope.Empty())
	assert.True(t, AccessScope{}.Empty())
}
