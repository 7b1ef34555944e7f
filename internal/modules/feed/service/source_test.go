package service

import (
	"testing"

	"anoa.com/kudosfeed/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestMatchesSearch(t *testing.T) {
	post := model.Post{Message: "Shipped the release", Tags: []string{"Design", "ux"}}

	tests := []struct {
		key  string
		want bool
	}{
		{"", true},
		{"  ", true},
		{"release", true},
		{"DESIGN", true},
		{"sign", true},
		{",", false},
		{`"`, false},
		{"gn\nux", false},
		{"backend", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchesSearch(post, tt.key))
		})
	}
}
