package account

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/bankes/core/es"
	"github.com/codewandler/bankes/core/money"
)

func TestEventCodec(t *testing.T) {
	tests := []struct {
		event Event
		tag   string
		json  string
	}{
		{
			event: AccountCreated{CustomerId: "C1", Currency: money.USD},
			tag:   "AccountCreated",
			json:  `{"CustomerId":"C1","Currency":"USD"}`,
		},
		{
			event: MoneyDeposited{Money: money.MustParse("100 USD")},
			tag:   "MoneyDeposited",
			json:  `{"Money":{"Amount":"100","Currency":"USD"}}`,
		},
		{
			event: MoneyWithdrawn{Money: money.MustParse("40.25 USD")},
			tag:   "MoneyWithdrawn",
			json:  `{"Money":{"Amount":"40.25","Currency":"USD"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			data, err := EncodeEvent(tt.event)
			require.NoError(t, err)
			require.Equal(t, tt.tag, data.Type)
			require.JSONEq(t, tt.json, string(data.Data))
			require.NotEmpty(t, data.ID)

			decoded, err := DecodeEvent(data.Type, data.Data)
			require.NoError(t, err)
			require.IsType(t, tt.event, decoded)

			again, err := EncodeEvent(decoded)
			require.NoError(t, err)
			require.Equal(t, data.Data, again.Data)
		})
	}
}

func TestDecodeEvent_errors(t *testing.T) {
	_, err := DecodeEvent("AccountClosed", []byte(`{}`))
	require.ErrorIs(t, err, es.ErrUnknownEventType)

	_, err = DecodeEvent(EventTypeMoneyDeposited, []byte(`{"Money":`))
	require.Error(t, err)
	require.NotErrorIs(t, err, es.ErrUnknownEventType)
}

func TestSnapshotCodec(t *testing.T) {
	s := Snapshot{
		State:   State{CustomerId: "C1", Balance: money.MustParse("60 USD")},
		Version: 4,
	}
	data, err := EncodeSnapshot(s)
	require.NoError(t, err)
	require.Equal(t, SnapshotEventType, data.Type)
	require.JSONEq(t,
		`{"State":{"CustomerId":"C1","Balance":{"Amount":"60","Currency":"USD"}},"Version":4}`,
		string(data.Data),
	)

	decoded, err := DecodeSnapshot(es.Record{Type: data.Type, Data: data.Data})
	require.NoError(t, err)
	require.Equal(t, es.Version(4), decoded.Version)
	require.True(t, decoded.State.Balance.Equal(s.State.Balance))

	_, err = DecodeSnapshot(es.Record{Type: "other", Data: data.Data})
	require.ErrorIs(t, err, es.ErrUnknownEventType)
}
