package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePayload_WhaleShapes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"bare array", `[{"amount":250},{"amount":180}]`},
		{"bare array with whitespace", " \n [{\"amount\":250},{\"amount\":180}]"},
		{"object", `{"transactions":[{"amount":250},{"amount":180}]}`},
		{"btc alias", `{"transactions":[{"amount_btc":250},{"amount_btc":180}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := DecodePayload(SourceWhaleTracker, json.RawMessage(tc.raw))
			require.NoError(t, err)
			w, ok := p.(WhalePayload)
			require.True(t, ok)
			require.Len(t, w.Transactions, 2)
			require.NotNil(t, w.Transactions[0].Amount)
			require.NotNil(t, w.Transactions[1].Amount)
			assert.Equal(t, 250.0, *w.Transactions[0].Amount)
			assert.Equal(t, 180.0, *w.Transactions[1].Amount)
		})
	}
}

func TestDecodePayload_AmountWinsOverAlias(t *testing.T) {
	p, err := DecodePayload(SourceWhaleTracker, json.RawMessage(`[{"amount":10,"amount_btc":99,"direction":"to_exchange"}]`))
	require.NoError(t, err)
	tx := p.(WhalePayload).Transactions[0]
	assert.Equal(t, 10.0, *tx.Amount)
	assert.Equal(t, "to_exchange", tx.Direction)
}

func TestDecodePayload_Errors(t *testing.T) {
	_, err := DecodePayload(SourceWhaleTracker, nil)
	assert.Error(t, err)
	_, err = DecodePayload(SourceWhaleTracker, json.RawMessage(`"nope"`))
	assert.Error(t, err)
	_, err = DecodePayload(SourceName("astrology"), json.RawMessage(`{}`))
	assert.Error(t, err)
}
