package hatchery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/herr-seppia/hatchery/codec"
	"github.com/herr-seppia/hatchery/ids"
	"github.com/herr-seppia/hatchery/internal/fixtures"
)

// box set then get within one session.
func TestBoxSetGet(t *testing.T) {
	ctx := context.Background()
	world, err := NewWorld(NewConfig(""))
	require.NoError(t, err)
	defer world.Close(ctx)

	module, err := world.Deploy(ctx, []byte(fixtures.Box))
	require.NoError(t, err)

	session := world.Session(0)
	defer session.Close(ctx)

	var arg [2]byte
	_, err = codec.EncodeInt16(arg[:], 42)
	require.NoError(t, err)

	_, err = session.Transact(ctx, module.ID, "set", arg[:])
	require.NoError(t, err)

	receipt, err := session.Query(ctx, module.ID, "get", nil)
	require.NoError(t, err)
	require.Len(t, receipt.Ret, 3)

	value, err := codec.DecodeOptionInt16(receipt.Ret)
	require.NoError(t, err)
	require.NotNil(t, value)
	require.Equal(t, int16(42), *value)
}

// counter with metering: increment twice then mogrify.
func TestCounterIncrementAndMogrify(t *testing.T) {
	ctx := context.Background()
	world, err := NewWorld(NewConfig(""))
	require.NoError(t, err)
	defer world.Close(ctx)

	module, err := world.Deploy(ctx, []byte(fixtures.Counter))
	require.NoError(t, err)

	session := world.Session(0)
	defer session.Close(ctx)

	for i := 0; i < 2; i++ {
		receipt, err := session.Transact(ctx, module.ID, "increment", nil)
		require.NoError(t, err)
		require.Greater(t, receipt.PointsUsed, uint64(0))
	}

	readReceipt, err := session.Query(ctx, module.ID, "read", nil)
	require.NoError(t, err)
	v, err := codec.DecodeUint32(readReceipt.Ret)
	require.NoError(t, err)
	require.EqualValues(t, 2, v)

	var arg [4]byte
	_, err = codec.EncodeUint32(arg[:], 32)
	require.NoError(t, err)
	_, err = session.Transact(ctx, module.ID, "mogrify", arg[:])
	require.NoError(t, err)

	readReceipt, err = session.Query(ctx, module.ID, "read", nil)
	require.NoError(t, err)
	v, err = codec.DecodeUint32(readReceipt.Ret)
	require.NoError(t, err)
	require.EqualValues(t, 64, v)
}

// a cross-module call via "q" reaches the callee and is metered
// against the caller's remaining budget.
func TestCrossModuleCall(t *testing.T) {
	ctx := context.Background()
	world, err := NewWorld(NewConfig(""))
	require.NoError(t, err)
	defer world.Close(ctx)

	counter, err := world.Deploy(ctx, []byte(fixtures.Counter))
	require.NoError(t, err)
	callcenter, err := world.Deploy(ctx, []byte(fixtures.CallCenter))
	require.NoError(t, err)

	session := world.Session(0)
	defer session.Close(ctx)

	receipt, err := session.Transact(ctx, callcenter.ID, "relay", counter.ID.Bytes())
	require.NoError(t, err)
	require.Greater(t, receipt.PointsUsed, uint64(0))

	readReceipt, err := session.Query(ctx, counter.ID, "read", nil)
	require.NoError(t, err)
	v, err := codec.DecodeUint32(readReceipt.Ret)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

// a cross-module call with no point budget left to pass onward fails as
// OutOfPoints, not as a crash, and leaves no partial state behind.
func TestOutOfPoints(t *testing.T) {
	ctx := context.Background()
	world, err := NewWorld(NewConfig(""))
	require.NoError(t, err)
	defer world.Close(ctx)

	counter, err := world.Deploy(ctx, []byte(fixtures.Counter))
	require.NoError(t, err)
	callcenter, err := world.Deploy(ctx, []byte(fixtures.CallCenter))
	require.NoError(t, err)

	session := world.Session(0)
	defer session.Close(ctx)

	// Exactly enough for relay's own dispatch charge (its argbuf carries
	// the 32-byte target module id), leaving nothing to pass to the
	// callee it relays into.
	session.SetPointLimit(BaseCallPointCost + uint64(ids.Size)*ArgBytePointCost)

	_, err = session.Transact(ctx, callcenter.ID, "relay", counter.ID.Bytes())
	require.Error(t, err)

	var herr *Error
	require.ErrorAs(t, err, &herr)
	require.Equal(t, KindOutOfPoints, herr.Kind)
	require.Equal(t, counter.ID, herr.ModuleId)
}

// committing a world after distinct counter states yields distinct
// WorldCommitIds, and restoring the first returns the counter to its state
// at that commit.
func TestWorldCommitRestore(t *testing.T) {
	ctx := context.Background()
	world, err := NewWorld(NewConfig(""))
	require.NoError(t, err)
	defer world.Close(ctx)

	module, err := world.Deploy(ctx, []byte(fixtures.Counter))
	require.NoError(t, err)

	session := world.Session(0)
	defer session.Close(ctx)

	_, err = session.Transact(ctx, module.ID, "increment", nil)
	require.NoError(t, err)
	commitA, err := world.Commit()
	require.NoError(t, err)

	_, err = session.Transact(ctx, module.ID, "increment", nil)
	require.NoError(t, err)
	commitB, err := world.Commit()
	require.NoError(t, err)

	require.NotEqual(t, commitA, commitB)

	require.NoError(t, world.Restore(ctx, commitA))
	session = world.Session(1)
	defer session.Close(ctx)

	receipt, err := session.Query(ctx, module.ID, "read", nil)
	require.NoError(t, err)
	v, err := codec.DecodeUint32(receipt.Ret)
	require.NoError(t, err)
	require.EqualValues(t, 1, v)
}

// touching only the argbuf between commits leaves the commit id
// unchanged.
func TestArgBufExcludedFromCommitId(t *testing.T) {
	ctx := context.Background()
	world, err := NewWorld(NewConfig(""))
	require.NoError(t, err)
	defer world.Close(ctx)

	module, err := world.Deploy(ctx, []byte(fixtures.Box))
	require.NoError(t, err)

	session := world.Session(0)
	defer session.Close(ctx)

	commitA, err := world.Commit()
	require.NoError(t, err)

	_, err = session.Query(ctx, module.ID, "get", nil)
	require.NoError(t, err)

	commitB, err := world.Commit()
	require.NoError(t, err)

	require.Equal(t, commitA, commitB)
}
