package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAreaName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "Zone A", want: "zone a"},
		{in: "  ZONE   a  ", want: "zone a"},
		{in: "St. Tammany", want: "st tammany"},
		{in: "Alexandria-Pineville", want: "alexandria pineville"},
		{in: "ＺＯＮＥ B", want: "zone b"},
		{in: "", want: ""},
		{in: "2.5 Miles", want: "2.5min"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeAreaName(tt.in))
		})
	}
}

func TestNormalizeAreaName_UnitSynonyms(t *testing.T) {
	pairs := []struct {
		a, b string
	}{
		{a: "5mi", b: "5min"},
		{a: "5 mi", b: "5 min"},
		{a: "5 mile", b: "5 min"},
		{a: "5 miles", b: "5min"},
		{a: "5miles", b: "5min"},
		{a: "5 mins", b: "5min"},
		{a: "5minutes", b: "5min"},
		{a: "5 Minute Zone", b: "5MIN zone"},
		{a: "8 MI ZONE", b: "8min zone"},
	}

	for _, p := range pairs {
		t.Run(p.a+"="+p.b, func(t *testing.T) {
			assert.Equal(t, NormalizeAreaName(p.a), NormalizeAreaName(p.b))
			assert.True(t, AreaNamesMatch(p.a, p.b))
		})
	}
}

func TestNormalizeAreaName_UnitWithoutNumberStaysDistinct(t *testing.T) {
	assert.Equal(t, "mi zone", NormalizeAreaName("Miles Zone"))
	assert.NotEqual(t, NormalizeAreaName("5 mi"), NormalizeAreaName("8 mi"))
}

func TestAreaContains(t *testing.T) {
	assert.True(t, AreaContains("Rapides Parish", "rapides"))
	assert.True(t, AreaContains("rapides", "Rapides  Parish"))
	assert.True(t, AreaContains("Central 5 Mile", "central 5min"))
	assert.False(t, AreaContains("Avoyelles", "Rapides"))
	assert.False(t, AreaContains("", "Rapides"))
	assert.False(t, AreaContains("Rapides", "  "))
}
