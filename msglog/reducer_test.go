package msglog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore/types"
)

func msg(id, content string) types.Message {
	return types.NewUserMessage(id, content)
}

func TestReduceAppend(t *testing.T) {
	base := []types.Message{msg("a", "one")}
	writes := []types.Message{msg("b", "two"), msg("c", "three")}

	out, err := Reduce(base, writes)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "c", out[2].ID)
}

func TestReduceOverwriteInPlace(t *testing.T) {
	base := []types.Message{msg("a", "one"), msg("b", "two"), msg("c", "three")}
	writes := []types.Message{msg("b", "edited")}

	out, err := Reduce(base, writes)
	require.NoError(t, err)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[1].ID, "edit must preserve position")
	assert.Equal(t, "edited", out[1].Content)
}

func TestReduceRemove(t *testing.T) {
	base := []types.Message{msg("a", "one"), msg("b", "two")}
	writes := []types.Message{types.RemoveMessage("a")}

	out, err := Reduce(base, writes)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestReduceRemoveUnknownIDFails(t *testing.T) {
	base := []types.Message{msg("a", "one")}
	writes := []types.Message{types.RemoveMessage("ghost")}

	_, err := Reduce(base, writes)
	require.Error(t, err)
	var editErr *InvalidLogEditError
	require.ErrorAs(t, err, &editErr)
	assert.Equal(t, "ghost", editErr.ID)
}

func TestReduceRemoveTargetsEarlierWrite(t *testing.T) {
	writes := []types.Message{msg("a", "one"), types.RemoveMessage("a")}

	out, err := Reduce(nil, writes)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestReduceRemoveAllDiscardsBase(t *testing.T) {
	base := []types.Message{msg("a", "one"), msg("b", "two")}
	writes := []types.Message{types.RemoveAllMessage(), msg("c", "fresh")}

	out, err := Reduce(base, writes)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "c", out[0].ID)
}

func TestReduceRemoveAllLastWins(t *testing.T) {
	base := []types.Message{msg("a", "one")}
	writes := []types.Message{
		types.RemoveAllMessage(),
		msg("dropped", "superseded by the second reset"),
		types.RemoveAllMessage(),
		msg("kept", "tail"),
	}

	out, err := Reduce(base, writes)
	require.NoError(t, err)

	want, err := Reduce(nil, []types.Message{msg("kept", "tail")})
	require.NoError(t, err)
	assert.Equal(t, want, out)
}

func TestReduceRemoveAllRequiresSentinel(t *testing.T) {
	writes := []types.Message{{ID: "not-the-sentinel", Op: types.OpRemoveAll}}

	_, err := Reduce(nil, writes)
	require.Error(t, err)
	var editErr *InvalidLogEditError
	require.ErrorAs(t, err, &editErr)
}

func TestReduceStripsOpMarkers(t *testing.T) {
	writes := []types.Message{types.RemoveAllMessage(), msg("a", "one")}

	out, err := Reduce(nil, writes)
	require.NoError(t, err)
	for _, m := range out {
		assert.Equal(t, types.OpNone, m.Op, "merged log must be clean")
	}
}

func TestReduceIdempotent(t *testing.T) {
	base := []types.Message{msg("a", "one"), msg("b", "two")}
	writes := []types.Message{
		msg("b", "edited"),
		msg("c", "appended"),
	}

	once, err := Reduce(base, writes)
	require.NoError(t, err)
	twice, err := Reduce(once, writes)
	require.NoError(t, err)
	assert.Equal(t, once, twice)
}

func TestReduceDoesNotMutateInputs(t *testing.T) {
	base := []types.Message{msg("a", "one")}
	writes := []types.Message{msg("a", "edited"), msg("b", "two")}

	_, err := Reduce(base, writes)
	require.NoError(t, err)
	assert.Equal(t, "one", base[0].Content)
}

func TestMessageIDDeterministic(t *testing.T) {
	a := MessageID(types.RoleUser, "thread-1", 3)
	b := MessageID(types.RoleUser, "thread-1", 3)
	c := MessageID(types.RoleUser, "thread-1", 4)
	d := MessageID(types.RoleAssistant, "thread-1", 3)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.NotEqual(t, a, d)
}

func TestToolResultIDDeterministic(t *testing.T) {
	assert.Equal(t, ToolResultID("call-1"), ToolResultID("call-1"))
	assert.NotEqual(t, ToolResultID("call-1"), ToolResultID("call-2"))
}
