package agentcore_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/agentcore"
	"github.com/BaSui01/agentcore/config"
	"github.com/BaSui01/agentcore/router"
	"github.com/BaSui01/agentcore/testutil/mocks"
	"github.com/BaSui01/agentcore/types"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Session.DatabasePath = ":memory:"
	return cfg
}

func TestNewRequiresModelSource(t *testing.T) {
	cfg := testConfig()
	_, err := agentcore.New(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model source")
}

func TestHarnessWithClient(t *testing.T) {
	cfg := testConfig()
	client := mocks.NewScriptedClient("mock").ExpectAnswer("wired up")

	h, err := agentcore.New(&cfg, agentcore.WithClient(client))
	require.NoError(t, err)

	res, err := h.Session.StartRun(context.Background(), "thread-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFinished, res.Phase)
	assert.Equal(t, "wired up", res.FinalAnswer)
}

func TestHarnessSyntheticDegradation(t *testing.T) {
	cfg := testConfig()
	cfg.Router.Degradation = router.DegradeSynthetic

	h, err := agentcore.New(&cfg)
	require.NoError(t, err)

	res, err := h.Session.StartRun(context.Background(), "thread-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseFinished, res.Phase)
	assert.True(t, strings.HasPrefix(res.FinalAnswer, "[degraded]"))
}
