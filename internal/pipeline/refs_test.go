package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchRef(t *testing.T) {
	tests := []struct {
		name string
		only []string
		ref  string
		want bool
	}{
		{name: "no filter", only: nil, ref: "feature/x", want: true},
		{name: "literal master", only: []string{"master", "py3"}, ref: "master", want: true},
		{name: "literal py3", only: []string{"master", "py3"}, ref: "py3", want: true},
		{name: "feature branch", only: []string{"master", "py3"}, ref: "feature/x", want: false},
		{name: "literal is not a prefix match", only: []string{"master"}, ref: "master-old", want: false},
		{name: "regex", only: []string{`/^release-\d+$/`}, ref: "release-12", want: true},
		{name: "regex miss", only: []string{`/^release-\d+$/`}, ref: "release-x", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := MatchRef(tt.only, tt.ref)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchRef_InvalidPattern(t *testing.T) {
	_, err := MatchRef([]string{"/(/"}, "master")
	assert.Error(t, err)
}
