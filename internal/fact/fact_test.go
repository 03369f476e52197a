package fact

import (
	"math/big"
	"testing"
)

func TestCoerceNumeric(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want float64
		ok   bool
	}{
		{"int", IntValue(42), 42, true},
		{"float", FloatValue(1.5), 1.5, true},
		{"string-numeric", StringValue("3.14"), 3.14, true},
		{"string-garbage", StringValue("nope"), 0, false},
		{"null", NullValue(), 0, false},
		{"bigint", BigIntValue(big.NewInt(1000)), 1000, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := CoerceNumeric(c.v)
			if ok != c.ok {
				t.Fatalf("ok = %v, want %v", ok, c.ok)
			}
			if ok && got != c.want {
				t.Fatalf("got %v, want %v", got, c.want)
			}
		})
	}
}

func TestValidateKey(t *testing.T) {
	if !ValidateKey("evm.block") {
		t.Fatalf("expected evm.block to be valid")
	}
	if !ValidateKey("pendle.impliedApy") {
		t.Fatalf("expected pendle.impliedApy to be valid")
	}
	if ValidateKey("noNamespace") {
		t.Fatalf("expected bare key to be invalid")
	}
}

func TestBagSetInfersKind(t *testing.T) {
	bag := Bag{}
	bag.Set("http.status", 200)
	if bag["http.status"].Kind() != Int {
		t.Fatalf("expected Int kind")
	}
}
