package eventrpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterMarshalling(t *testing.T) {
	t.Run("block filter", func(t *testing.T) {
		num := uint64(42)
		f := NewFilter("f-1", BlockFinalizedCategory, &BlockFilter{BlockNumber: &num})
		data, err := json.Marshal(f)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"f-1","category":"BLOCK_FINALIZED","config":{"block_number":42}}`, string(data))

		got := new(Filter)
		require.NoError(t, json.Unmarshal(data, got))
		require.Equal(t, f, got)
	})

	t.Run("any block", func(t *testing.T) {
		f := NewFilter("f-2", BlockFinalizedCategory, new(BlockFilter))
		data, err := json.Marshal(f)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"f-2","category":"BLOCK_FINALIZED","config":{"block_number":null}}`, string(data))

		got := new(Filter)
		require.NoError(t, json.Unmarshal(data, got))
		require.Nil(t, got.Config.(*BlockFilter).BlockNumber)
	})

	t.Run("value filter", func(t *testing.T) {
		src := UserSource
		f := NewFilter("v-1", ValueChangedCategory, &ValueFilter{Path: "/acc/balance", EventSource: &src})
		data, err := json.Marshal(f)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"v-1","category":"VALUE_CHANGED","config":{"path":"/acc/balance","event_source":"USER"}}`, string(data))

		got := new(Filter)
		require.NoError(t, json.Unmarshal(data, got))
		require.Equal(t, f, got)
	})

	t.Run("tx filter", func(t *testing.T) {
		f := NewFilter("t-1", TxStateChangedCategory, &TxFilter{TxHash: "0xdead"})
		data, err := json.Marshal(f)
		require.NoError(t, err)
		require.JSONEq(t, `{"id":"t-1","category":"TX_STATE_CHANGED","config":{"tx_hash":"0xdead"}}`, string(data))

		got := new(Filter)
		require.NoError(t, json.Unmarshal(data, got))
		require.Equal(t, f, got)
	})
}

func TestFilterUnmarshallingErrors(t *testing.T) {
	f := new(Filter)

	// FILTER_DELETED is pushed by the server only.
	err := json.Unmarshal([]byte(`{"id":"x","category":"FILTER_DELETED","config":{}}`), f)
	require.ErrorIs(t, err, ErrInvalidFilter)

	require.Error(t, json.Unmarshal([]byte(`{"id":"x","category":"NOPE","config":{}}`), f))

	err = json.Unmarshal([]byte(`{"id":"x","category":"BLOCK_FINALIZED"}`), f)
	require.ErrorIs(t, err, ErrInvalidFilter)

	err = json.Unmarshal([]byte(`{"id":"x","category":"TX_STATE_CHANGED","config":{"tx_hash":42}}`), f)
	require.ErrorIs(t, err, ErrInvalidFilter)
}

func TestFilterConfigIsValid(t *testing.T) {
	require.NoError(t, new(BlockFilter).IsValid())
	require.ErrorIs(t, (*BlockFilter)(nil).IsValid(), ErrInvalidFilter)

	require.NoError(t, (&ValueFilter{Path: "/x"}).IsValid())
	require.ErrorIs(t, (*ValueFilter)(nil).IsValid(), ErrInvalidFilter)
	require.ErrorIs(t, new(ValueFilter).IsValid(), ErrInvalidFilter)
	badSrc := EventSource(99)
	require.ErrorIs(t, (&ValueFilter{Path: "/x", EventSource: &badSrc}).IsValid(), ErrInvalidFilter)

	require.NoError(t, (&TxFilter{TxHash: "0xdead"}).IsValid())
	require.ErrorIs(t, (*TxFilter)(nil).IsValid(), ErrInvalidFilter)
	require.ErrorIs(t, new(TxFilter).IsValid(), ErrInvalidFilter)
}

func TestFilterConfigCopy(t *testing.T) {
	num := uint64(7)
	bf := &BlockFilter{BlockNumber: &num}
	bfCopy := bf.Copy().(*BlockFilter)
	*bf.BlockNumber = 8
	require.Equal(t, uint64(7), *bfCopy.BlockNumber)

	src := BlockSource
	vf := &ValueFilter{Path: "/x", EventSource: &src}
	vfCopy := vf.Copy().(*ValueFilter)
	*vf.EventSource = UserSource
	require.Equal(t, BlockSource, *vfCopy.EventSource)

	require.ErrorIs(t, (*TxFilter)(nil).Copy().IsValid(), ErrInvalidFilter)
}

func TestFilterCopy(t *testing.T) {
	require.Nil(t, (*Filter)(nil).Copy())

	f := NewFilter("t-1", TxStateChangedCategory, &TxFilter{TxHash: "0xdead"})
	cp := f.Copy()
	require.Equal(t, f, cp)

	f.Config.(*TxFilter).TxHash = "0xbeef"
	require.Equal(t, "0xdead", cp.Config.(*TxFilter).TxHash)

	cp = (&Filter{ID: "bare"}).Copy()
	require.Nil(t, cp.Config)
}
