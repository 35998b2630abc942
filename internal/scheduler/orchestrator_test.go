package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pipeline/internal/model"
)

func tracks(names ...string) []model.TrackDefinition {
	out := make([]model.TrackDefinition, len(names))
	for i, n := range names {
		out[i] = model.TrackDefinition{Name: n, Default: i == 0}
	}
	return out
}

func TestValidateTracks_Valid(t *testing.T) {
	assert.NoError(t, validateTracks(tracks("core", "infra")))
}

func TestValidateTracks_RejectsEmpty(t *testing.T) {
	assert.Error(t, validateTracks(nil))
}

func TestValidateTracks_RejectsMoreThanFive(t *testing.T) {
	assert.Error(t, validateTracks(tracks("a", "b", "c", "d", "e", "f")))
}

func TestValidateTracks_RequiresExactlyOneDefault(t *testing.T) {
	none := []model.TrackDefinition{{Name: "a"}, {Name: "b"}}
	assert.Error(t, validateTracks(none))

	both := []model.TrackDefinition{{Name: "a", Default: true}, {Name: "b", Default: true}}
	assert.Error(t, validateTracks(both))
}

func TestValidateTracks_RejectsDuplicateNames(t *testing.T) {
	dup := []model.TrackDefinition{{Name: "a", Default: true}, {Name: "a"}}
	assert.Error(t, validateTracks(dup))
}

func TestValidateTracks_RejectsEmptyName(t *testing.T) {
	bad := []model.TrackDefinition{{Name: "", Default: true}}
	assert.Error(t, validateTracks(bad))
}

func TestDistinctCategories_PreservesFirstSeenOrderAndDedupes(t *testing.T) {
	features := []model.Feature{
		{Category: "core"},
		{Category: "infra"},
		{Category: "core"},
		{Category: ""},
	}
	assert.Equal(t, []string{"core", "infra"}, distinctCategories(features))
}
