package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJSONCodec(t *testing.T) {
	type payload struct {
		Name  string
		Count int
	}
	c := JSONCodec{}

	data, err := c.Marshal(payload{Name: "a", Count: 2})
	require.NoError(t, err)
	require.Equal(t, `{"Name":"a","Count":2}`, string(data))

	out, err := Decode[payload](c, data)
	require.NoError(t, err)
	require.Equal(t, payload{Name: "a", Count: 2}, out)

	again, err := c.Marshal(out)
	require.NoError(t, err)
	require.Equal(t, data, again)

	_, err = Decode[payload](c, []byte("{"))
	require.Error(t, err)
}
