package detector

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokenLiquidity/internal/model"
)

type fakeHistory struct {
	txids []string
	err   error
}

func (f fakeHistory) FetchTxids(context.Context) ([]string, error) {
	return f.txids, f.err
}

type fakeConfirmations map[string]int64

func (f fakeConfirmations) Confirmations(_ context.Context, txid string) (int64, error) {
	confs, ok := f[txid]
	if !ok {
		return 0, errors.New("unknown tx " + txid)
	}
	return confs, nil
}

func TestDetectNewReturnsUnseenTail(t *testing.T) {
	history := fakeHistory{txids: []string{"a1", "b2", "c3"}}
	det := NewDetector(fakeConfirmations{"a1": 9, "b2": 4, "c3": 1}, nil)

	got, err := det.DetectNew(context.Background(), NewSeenSet("a1", "b2"), history)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.TxRecord{Txid: "c3", Confirmations: 1}, got[0])

	raw, err := json.Marshal(got[0])
	require.NoError(t, err)
	var keys map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &keys))
	assert.Len(t, keys, 2)
	assert.Contains(t, keys, "txid")
	assert.Contains(t, keys, "confirmations")
}

func TestDetectNewFullySeen(t *testing.T) {
	history := fakeHistory{txids: []string{"a1", "b2", "c3"}}
	det := NewDetector(nil, nil)

	got, err := det.DetectNew(context.Background(), NewSeenSet(history.txids...), history)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDetectNewKeepsHistoryOrder(t *testing.T) {
	history := fakeHistory{txids: []string{"a1", "x9", "b2", "x9", "y8"}}
	det := NewDetector(nil, nil)

	got, err := det.DetectNew(context.Background(), NewSeenSet("b2"), history)
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, r := range got {
		ids = append(ids, r.Txid)
	}
	assert.Equal(t, []string{"a1", "x9", "y8"}, ids)
}

func TestDetectNewPropagatesFetchError(t *testing.T) {
	fetchErr := errors.New("indexer unavailable: 503")
	det := NewDetector(nil, nil)

	_, err := det.DetectNew(context.Background(), NewSeenSet(), fakeHistory{err: fetchErr})
	require.Error(t, err)
	assert.Same(t, fetchErr, err)
}

func TestDetectNewPropagatesConfirmationError(t *testing.T) {
	det := NewDetector(fakeConfirmations{}, nil)

	_, err := det.DetectNew(context.Background(), NewSeenSet(), fakeHistory{txids: []string{"z"}})
	require.EqualError(t, err, "unknown tx z")
}

func TestFilterNewByChain(t *testing.T) {
	raw := []model.ChainTx{{ID: "a"}, {ID: "b", Memo: "m"}, {ID: "c"}, {ID: "b"}, {ID: ""}}

	got := FilterNewByChain(NewSeenSet("a"), raw)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "m", got[0].Memo)
	assert.Equal(t, "c", got[1].ID)

	assert.Empty(t, FilterNewByChain(NewSeenSet("a", "b", "c"), raw[:4]))
}

func TestSeenSetAppendOnly(t *testing.T) {
	set := NewSeenSet("a", "b")
	added := set.Add("b", "c", "", "a", "d")

	assert.Equal(t, []string{"c", "d"}, added)
	assert.Equal(t, []string{"a", "b", "c", "d"}, set.IDs())
	assert.Equal(t, 4, set.Len())
	last, ok := set.Last()
	require.True(t, ok)
	assert.Equal(t, "d", last)

	var empty *SeenSet
	assert.False(t, empty.Has("a"))
	assert.Zero(t, empty.Len())
}

func TestFileSeenStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "state", "seen.json")
	store := NewFileSeenStore(path)

	got, err := store.LoadSeen(ctx, "bch")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, store.AppendSeen(ctx, "bch", "a", "b"))
	require.NoError(t, store.AppendSeen(ctx, "bch", "b", "c"))
	require.NoError(t, store.AppendSeen(ctx, "evm", "0x1"))

	reopened := NewFileSeenStore(path)
	got, err = reopened.LoadSeen(ctx, "bch")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, got)

	got, err = reopened.LoadSeen(ctx, "evm")
	require.NoError(t, err)
	assert.Equal(t, []string{"0x1"}, got)
}
