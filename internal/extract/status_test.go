package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"animehub/pkg/models"
)

func TestMapStatus(t *testing.T) {
	tests := []struct {
		in   string
		want models.SourceStatus
	}{
		{"连载中", models.StatusOngoing},
		{"放送中", models.StatusOngoing},
		{"放送", models.StatusOngoing},
		{"完结", models.StatusEnded},
		{"已完结", models.StatusEnded},
		{"未放送", models.StatusNotReleased},
		{"未上映", models.StatusNotReleased},
		{"ongoing", models.StatusOngoing},
		// near-misses and garbage must not be guessed
		{"完结中文", models.StatusUnclassified},
		{"garbled－unknown-text", models.StatusUnclassified},
		{"", models.StatusUnclassified},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MapStatus(tt.in), "input %q", tt.in)
	}
}

func TestMapStatusTrimsWhitespace(t *testing.T) {
	assert.Equal(t, models.StatusEnded, MapStatus("  完结 "))
}
