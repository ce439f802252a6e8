package pipeline

import (
	"testing"

	"github.com/hakim/threatiac/internal/feeds"
	"github.com/hakim/threatiac/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTypeMatches(t *testing.T) {
	tests := []struct {
		typ, pattern string
		want         bool
	}{
		{"aws_instance", "aws_instance", true},
		{"AWS_Instance", "aws_instance", true},
		{"aws_instance", "aws_*", true},
		{"aws", "aws_*", false},
		{"google_compute_instance", "aws_*", false},
		{"anything", "*", true},
		{"aws_instance", "aws_s3_bucket", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, typeMatches(tt.typ, tt.pattern), "%s vs %s", tt.typ, tt.pattern)
	}
}

func TestResourceScopeAllows(t *testing.T) {
	res := func(typ string) models.ResourceDescriptor { return models.ResourceDescriptor{Type: typ} }

	var empty ResourceScope
	assert.True(t, empty.Allows(res("aws_instance")))

	s := ResourceScope{Include: []string{"aws_*"}, Exclude: []string{"aws_iam_*"}}
	assert.True(t, s.Allows(res("aws_instance")))
	assert.False(t, s.Allows(res("aws_iam_role")))
	assert.False(t, s.Allows(res("azurerm_storage_account")))
}

func TestResourceScopeValidate(t *testing.T) {
	assert.NoError(t, ResourceScope{Include: []string{"aws_*", "google_compute_instance"}}.Validate())
	assert.Error(t, ResourceScope{Include: []string{"aws_*_bucket"}}.Validate())
	assert.Error(t, ResourceScope{Exclude: []string{""}}.Validate())
}

func TestPresets(t *testing.T) {
	assert.Equal(t, []string{"exposure", "full", "offline", "reputation"}, PresetNames())

	_, err := GetPreset("nope")
	assert.Error(t, err)

	all := map[string]feeds.Options{
		feeds.FeedAbuseIPDB: {}, feeds.FeedGreyNoise: {}, feeds.FeedShodan: {}, feeds.FeedOTX: {},
	}

	p, err := GetPreset("reputation")
	require.NoError(t, err)
	sel := p.Select(all)
	assert.Len(t, sel, 2)
	assert.Contains(t, sel, feeds.FeedAbuseIPDB)
	assert.Contains(t, sel, feeds.FeedGreyNoise)

	p, err = GetPreset(DefaultPreset)
	require.NoError(t, err)
	assert.Len(t, p.Select(all), 4)

	p, err = GetPreset("offline")
	require.NoError(t, err)
	assert.Empty(t, p.Select(all))
}
