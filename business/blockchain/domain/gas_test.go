package domain

import (
	"math/big"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestGasPrice(t *testing.T) {
	wei := big.NewInt(20_000_000_000) // 20 gwei
	gp := NewGasPrice(1, wei, time.Now())

	wei.SetInt64(0)
	if gp.Wei.Int64() != 20_000_000_000 {
		t.Fatal("GasPrice must copy its input")
	}

	if gp.Gwei() != 20 {
		t.Errorf("expected 20 gwei, got %v", gp.Gwei())
	}

	// 2 hops × 150k gas × 20 gwei = 0.006 ETH
	cost := gp.CostNative(300_000)
	if !cost.Equal(decimal.RequireFromString("0.006")) {
		t.Errorf("expected 0.006, got %s", cost)
	}
}
