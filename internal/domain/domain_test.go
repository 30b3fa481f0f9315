package domain

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	cases := []struct {
		name  string
		in    any
		empty bool
		want  float64
	}{
		{name: "nil", in: nil, empty: true},
		{name: "blank", in: "  ", empty: true},
		{name: "text", in: "abc", empty: true},
		{name: "numeric string", in: " 120 ", want: 120},
		{name: "zero string", in: "0", want: 0},
		{name: "float", in: 2.5, want: 2.5},
		{name: "int", in: 7, want: 7},
		{name: "json number", in: json.Number("30"), want: 30},
		{name: "nan string", in: "NaN", empty: true},
		{name: "inf string", in: "Inf", empty: true},
		{name: "negative inf string", in: "-inf", empty: true},
		{name: "overflow string", in: "1e400", empty: true},
		{name: "nan float", in: math.NaN(), empty: true},
		{name: "inf float", in: math.Inf(1), empty: true},
		{name: "inf float32", in: float32(math.Inf(-1)), empty: true},
		{name: "nan json number", in: json.Number("NaN"), empty: true},
		{name: "unsupported type", in: true, empty: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ParseTarget(tc.in)
			assert.Equal(t, tc.empty, got.IsEmpty())
			if !tc.empty {
				v, ok := got.Value()
				require.True(t, ok)
				assert.Equal(t, tc.want, v)
			}
			_, err := json.Marshal(got)
			assert.NoError(t, err)
		})
	}
}

func TestTargetJSON(t *testing.T) {
	var out struct {
		A Target `json:"a"`
		B Target `json:"b"`
		C Target `json:"c"`
		D Target `json:"d"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"","b":"NaN","c":42,"d":null}`), &out))
	assert.True(t, out.A.IsEmpty())
	assert.True(t, out.B.IsEmpty())
	assert.Equal(t, "42", out.C.String())
	assert.True(t, out.D.IsEmpty())

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"","b":"","c":42,"d":""}`, string(b))
}

func TestNumericTargetRejectsNonFinite(t *testing.T) {
	assert.True(t, NumericTarget(math.NaN()).IsEmpty())
	assert.True(t, NumericTarget(math.Inf(1)).IsEmpty())
	assert.False(t, NumericTarget(0).IsEmpty())
}
