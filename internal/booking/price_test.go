package booking

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"hotel-stays-backend/internal/model"
)

func TestPrice(t *testing.T) {
	tests := []struct {
		name     string
		perNight model.Money
		nights   int
		taxRate  float64
		want     model.Money
	}{
		{"three nights with twelve percent tax", 100000, 3, 0.12, 336000},
		{"no tax", 12345, 2, 0, 24690},
		{"rounds half up", 1, 1, 0.5, 2},
		{"rounds down below half", 333, 1, 0.001, 333},
		{"seven percent on odd cents", 9999, 1, 0.07, 10699},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Price(tt.perNight, tt.nights, tt.taxRate))
		})
	}
	assert.Equal(t, "3360.00", Price(100000, 3, 0.12).String())
}
