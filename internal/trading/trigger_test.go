package trading

import (
	"testing"

	"papertrader/internal/models"
)

func fptr(v float64) *float64 { return &v }

func TestShouldTrigger(t *testing.T) {
	tests := []struct {
		name  string
		order models.Order
		price float64
		want  bool
	}{
		{
			name:  "limit buy fills at the limit price",
			order: models.Order{Side: models.OrderSideBuy, Type: models.OrderTypeLimit, LimitPrice: fptr(100)},
			price: 100,
			want:  true,
		},
		{
			name:  "limit buy fills below the limit price",
			order: models.Order{Side: models.OrderSideBuy, Type: models.OrderTypeLimit, LimitPrice: fptr(100)},
			price: 99.5,
			want:  true,
		},
		{
			name:  "limit buy waits above the limit price",
			order: models.Order{Side: models.OrderSideBuy, Type: models.OrderTypeLimit, LimitPrice: fptr(100)},
			price: 100.01,
			want:  false,
		},
		{
			name:  "limit sell fills at the limit price",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeLimit, LimitPrice: fptr(150)},
			price: 150,
			want:  true,
		},
		{
			name:  "limit sell fills above the limit price",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeLimit, LimitPrice: fptr(150)},
			price: 151,
			want:  true,
		},
		{
			name:  "limit sell waits below the limit price",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeLimit, LimitPrice: fptr(150)},
			price: 149.99,
			want:  false,
		},
		{
			name:  "stop sell fills at the stop price",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeStop, StopPrice: fptr(90)},
			price: 90,
			want:  true,
		},
		{
			name:  "stop sell fills below the stop price",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeStop, StopPrice: fptr(90)},
			price: 85,
			want:  true,
		},
		{
			name:  "stop sell waits above the stop price",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeStop, StopPrice: fptr(90)},
			price: 90.01,
			want:  false,
		},
		{
			name:  "stop buy never triggers",
			order: models.Order{Side: models.OrderSideBuy, Type: models.OrderTypeStop, StopPrice: fptr(110)},
			price: 120,
			want:  false,
		},
		{
			name:  "market order never waits in the book",
			order: models.Order{Side: models.OrderSideBuy, Type: models.OrderTypeMarket},
			price: 100,
			want:  false,
		},
		{
			name:  "limit order without a limit price never triggers",
			order: models.Order{Side: models.OrderSideBuy, Type: models.OrderTypeLimit},
			price: 100,
			want:  false,
		},
		{
			name:  "stop order without a stop price never triggers",
			order: models.Order{Side: models.OrderSideSell, Type: models.OrderTypeStop},
			price: 100,
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTrigger(&tt.order, tt.price); got != tt.want {
				t.Errorf("ShouldTrigger(%+v, %v) = %v, want %v", tt.order, tt.price, got, tt.want)
			}
		})
	}
}
