package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/arbitrage-engine/internal/apperror"
)

func mustPath(t *testing.T, hops ...Hop) Path {
	t.Helper()
	p, err := NewPath(hops)
	if err != nil {
		t.Fatalf("NewPath: %v", err)
	}
	return p
}

func crossDexPath(t *testing.T) Path {
	return mustPath(t,
		Hop{ChainID: 1, DexID: "uniswap-v3", TokenIn: "USDC", TokenOut: "WETH", AmountIn: decimal.NewFromInt(10_000)},
		Hop{ChainID: 1, DexID: "sushiswap", TokenIn: "WETH", TokenOut: "USDC", AmountIn: decimal.RequireFromString("4.9975")},
	)
}

func TestNewPath(t *testing.T) {
	tests := []struct {
		name    string
		hops    []Hop
		wantErr bool
	}{
		{"empty", nil, true},
		{"single hop", []Hop{{ChainID: 1, DexID: "d", TokenIn: "A", TokenOut: "B"}}, true},
		{"missing dex", []Hop{{ChainID: 1, TokenIn: "A", TokenOut: "B"}, {ChainID: 1, DexID: "d", TokenIn: "B", TokenOut: "A"}}, true},
		{"two hops", []Hop{{ChainID: 1, DexID: "d", TokenIn: "A", TokenOut: "B"}, {ChainID: 1, DexID: "d", TokenIn: "B", TokenOut: "A"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPath(tt.hops)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && apperror.GetCode(err) != apperror.CodeInvalidPath {
				t.Errorf("code = %s", apperror.GetCode(err))
			}
		})
	}
}

func TestPath_IsImmutable(t *testing.T) {
	hops := []Hop{
		{ChainID: 1, DexID: "d", TokenIn: "A", TokenOut: "B"},
		{ChainID: 1, DexID: "d", TokenIn: "B", TokenOut: "A"},
	}
	p := mustPath(t, hops...)

	hops[0].TokenIn = "Z"
	out := p.Hops()
	out[1].DexID = "other"

	if p.First().TokenIn != "A" || p.Last().DexID != "d" {
		t.Fatalf("path mutated through aliasing: %s", p)
	}
}

func TestPath_Accessors(t *testing.T) {
	p := mustPath(t,
		Hop{ChainID: 1, DexID: "uniswap-v3", TokenIn: "USDC", TokenOut: "WETH"},
		Hop{ChainID: 42161, DexID: "camelot", TokenIn: "WETH", TokenOut: "USDC.e"},
		Hop{ChainID: 42161, DexID: "camelot", TokenIn: "USDC.e", TokenOut: "WETH"},
	)

	if got := p.ChainIDs(); len(got) != 2 || got[0] != 1 || got[1] != 42161 {
		t.Errorf("ChainIDs() = %v", got)
	}
	if got := p.Lanes(); len(got) != 2 {
		t.Errorf("Lanes() = %v, expected the camelot pair collapsed into one lane", got)
	}
	if got := p.String(); got != "1:uniswap-v3:USDC>WETH -> 42161:camelot:WETH>USDC.e -> 42161:camelot:USDC.e>WETH" {
		t.Errorf("String() = %q", got)
	}
}

func TestFingerprint_StableAcrossPrices(t *testing.T) {
	p := crossDexPath(t)

	a := Fingerprint(CrossDex, p, decimal.RequireFromString("10000"))
	b := Fingerprint(CrossDex, p.WithAmounts([]decimal.Decimal{decimal.NewFromInt(10_000), decimal.RequireFromString("5.01")}),
		decimal.RequireFromString("10000.0000001"))
	if a != b {
		t.Error("fingerprint must ignore per-hop amounts and sub-6dp noise")
	}
	if Fingerprint(SimpleIntraDex, p, decimal.NewFromInt(10_000)) == a {
		t.Error("kind is part of the fingerprint")
	}
	if Fingerprint(CrossDex, p, decimal.NewFromInt(20_000)) == a {
		t.Error("trade size is part of the fingerprint")
	}
	if len(a) != 64 {
		t.Errorf("expected hex sha256, got %q", a)
	}
}

func TestNewProfitResult(t *testing.T) {
	eps := decimal.New(1, -9)

	tests := []struct {
		name       string
		amountIn   string
		amountOut  string
		gas        string
		wantNet    string
		wantPct    string
		wantProfit bool
	}{
		{"profitable after gas", "10000", "10040", "12", "28", "0.28", true},
		{"gas eats the spread", "10000", "10010", "12", "-2", "-0.02", false},
		{"breakeven", "10000", "10012", "12", "0", "0", false},
		{"below epsilon", "10000", "10012.0000000001", "12", "0.0000000001", "0.000000000001", false},
		{"loss", "5", "4.9", "0.01", "-0.11", "-2.2", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewProfitResult(
				decimal.RequireFromString(tt.amountIn),
				decimal.RequireFromString(tt.amountOut),
				decimal.RequireFromString(tt.gas),
				decimal.Zero,
				eps,
			)
			if !r.NetProfit.Equal(decimal.RequireFromString(tt.wantNet)) {
				t.Errorf("NetProfit = %s, want %s", r.NetProfit, tt.wantNet)
			}
			if !r.NetProfitPct.Equal(decimal.RequireFromString(tt.wantPct)) {
				t.Errorf("NetProfitPct = %s, want %s", r.NetProfitPct, tt.wantPct)
			}
			if r.IsProfitable != tt.wantProfit {
				t.Errorf("IsProfitable = %v, want %v", r.IsProfitable, tt.wantProfit)
			}
		})
	}
}

func TestNetProfitPercent_RoundTrip(t *testing.T) {
	in := decimal.RequireFromString("2500")
	r := NewProfitResult(in, decimal.RequireFromString("2537.5"), decimal.RequireFromString("12.5"), decimal.Zero, decimal.Zero)

	back := r.NetProfitPct.Div(decimal.NewFromInt(100)).Mul(in)
	if !back.Equal(r.NetProfit) {
		t.Errorf("pct %s of %s = %s, want %s", r.NetProfitPct, in, back, r.NetProfit)
	}
}

func TestApplyFee(t *testing.T) {
	got := ApplyFee(decimal.NewFromInt(10_000), 30)
	if !got.Equal(decimal.NewFromInt(9_970)) {
		t.Errorf("ApplyFee = %s", got)
	}
	if !ApplyFee(decimal.NewFromInt(5), 0).Equal(decimal.NewFromInt(5)) {
		t.Error("zero fee is identity")
	}
}

func TestBridgeQuote_Apply(t *testing.T) {
	q := BridgeQuote{
		FeeBps:              10,
		FixedFee:            decimal.RequireFromString("0.001"),
		Latency:             2 * time.Minute,
		PenaltyBpsPerMinute: decimal.RequireFromString("2.5"),
	}
	// 15 bps total, then the fixed fee
	got := q.Apply(decimal.NewFromInt(10))
	if !got.Equal(decimal.RequireFromString("9.984")) {
		t.Errorf("Apply = %s, want 9.984", got)
	}
	if !q.Apply(decimal.RequireFromString("0.0005")).IsZero() {
		t.Error("bridging less than the fixed fee yields zero")
	}
}

func TestOpportunity_Expiry(t *testing.T) {
	created := time.Unix(1_700_000_000, 0)
	r := NewProfitResult(decimal.NewFromInt(10_000), decimal.NewFromInt(10_040), decimal.NewFromInt(12), decimal.Zero, decimal.Zero)
	o := NewOpportunity(CrossDex, crossDexPath(t), r, 0.9, created, 0)

	if !o.ExpiresAt.Equal(created.Add(60 * time.Second)) {
		t.Errorf("ExpiresAt = %s", o.ExpiresAt)
	}
	if o.IsExpired(created.Add(59 * time.Second)) {
		t.Error("not expired before ttl")
	}
	if o.IsExpired(created.Add(60 * time.Second)) {
		t.Error("still live at exactly ExpiresAt")
	}
	if !o.IsExpired(created.Add(60*time.Second + time.Nanosecond)) {
		t.Error("expired after ttl")
	}
	if o.ProfitToken != "USDC" {
		t.Errorf("ProfitToken = %s", o.ProfitToken)
	}
}

func TestCompareValue(t *testing.T) {
	created := time.Unix(1_700_000_000, 0)
	opp := func(in, out int64) Opportunity {
		r := NewProfitResult(decimal.NewFromInt(in), decimal.NewFromInt(out), decimal.Zero, decimal.Zero, decimal.Zero)
		return NewOpportunity(CrossDex, crossDexPath(t), r, 0.9, created, 0)
	}

	// 1 WETH of profit is worth more than 30 USDC even though 1 < 30.
	weth := opp(100, 101).WithUSDValue(decimal.NewFromInt(2000))
	usdc := opp(10_000, 10_030).WithUSDValue(decimal.NewFromInt(30))
	if CompareValue(weth, usdc) >= 0 {
		t.Error("higher USD value ranks first")
	}
	if CompareValue(usdc, weth) <= 0 {
		t.Error("CompareValue is antisymmetric")
	}

	unvalued := opp(10, 20)
	if CompareValue(usdc, unvalued) >= 0 {
		t.Error("a valued opportunity ranks ahead of an unvalued one")
	}
	// Without USD values, 10% beats 0.3%.
	if CompareValue(unvalued, opp(10_000, 10_030)) >= 0 {
		t.Error("unvalued opportunities compare on percent")
	}
	if CompareValue(weth, weth) != 0 {
		t.Error("equal values compare equal")
	}
}

func TestPath_JSON(t *testing.T) {
	p := crossDexPath(t)
	b, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got Path
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.String() != p.String() {
		t.Errorf("got %s, want %s", got, p)
	}
	if !got.First().AmountIn.Equal(decimal.NewFromInt(10_000)) {
		t.Errorf("amount in = %s", got.First().AmountIn)
	}

	if err := json.Unmarshal([]byte(`[{"chain_id":1,"dex":"d","token_in":"A","token_out":"B"}]`), &got); err == nil {
		t.Error("expected single-hop path to be rejected")
	}
}
