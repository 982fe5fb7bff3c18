package evaluator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/hashing"
)

func TestGetClientInitializeResponse(t *testing.T) {
	t.Parallel()

	user := User{
		UserID:            "u1",
		CustomIDs:         map[string]string{"companyID": "acme"},
		PrivateAttributes: map[string]any{"email": "dev@corp.com"},
	}

	t.Run("Returns nil until the store serves checks", func(t *testing.T) {
		eval := New(newTestStore(t, ""), discardLogger())
		assert.Nil(t, eval.GetClientInitializeResponse(user, ProjectionOptions{}, "test"))
	})

	t.Run("Plaintext names with hash none", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		assert.Equal(t, "none", response.HashUsed)
		assert.True(t, response.HasUpdates)
		assert.Equal(t, int64(1000), response.Time)
		assert.Contains(t, response.FeatureGates, "a_gate")
		assert.Contains(t, response.DynamicConfigs, "exp_b")
		assert.Contains(t, response.LayerConfigs, "layer_one")
	})

	t.Run("Default hash is sha256 over names", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{}, "test")
		require.NotNil(t, response)

		assert.Equal(t, "sha256", response.HashUsed)
		hashed := hashing.Sha256ToBase64("a_gate")
		require.Contains(t, response.FeatureGates, hashed)
		assert.Equal(t, hashed, response.FeatureGates[hashed].Name)
	})

	t.Run("djb2 hashing is supported", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmDjb2}, "test")
		require.NotNil(t, response)
		assert.Contains(t, response.FeatureGates, hashing.Djb2("a_gate"))
	})

	t.Run("Segment and holdout gates are omitted", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		assert.NotContains(t, response.FeatureGates, "segment:internal")
		// But gates depending on them still project (with exposures stripped).
		require.Contains(t, response.FeatureGates, "segment_dependent_gate")
		assert.Empty(t, response.FeatureGates["segment_dependent_gate"].SecondaryExposures)
	})

	t.Run("Experiment entries carry membership metadata", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		expB := response.DynamicConfigs["exp_b"]
		require.NotNil(t, expB.IsUserInExperiment)
		assert.True(t, *expB.IsUserInExperiment)
		require.NotNil(t, expB.IsExperimentActive)
		assert.True(t, *expB.IsExperimentActive)

		// Plain dynamic configs carry none of it.
		myConfig := response.DynamicConfigs["my_config"]
		assert.Nil(t, myConfig.IsUserInExperiment)
		assert.Nil(t, myConfig.IsExperimentActive)
	})

	t.Run("Shared-param experiments merge the owning layer's defaults", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		expB := response.DynamicConfigs["exp_b"]
		assert.True(t, expB.IsInLayer)
		assert.Equal(t, []string{"param"}, expB.ExplicitParameters)

		// Layer default "extra" shows through; the evaluated "param" wins.
		assert.Equal(t, "control", expB.Value["param"])
		assert.Equal(t, float64(1), expB.Value["extra"])
	})

	t.Run("Layer entries surface the delegated experiment", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		layer := response.LayerConfigs["layer_one"]
		assert.Equal(t, "exp_b", layer.AllocatedExperimentName)
		assert.Equal(t, []string{"param"}, layer.ExplicitParameters)
		require.NotNil(t, layer.IsExperimentActive)
		assert.True(t, *layer.IsExperimentActive)
		require.NotNil(t, layer.IsUserInExperiment)
		assert.True(t, *layer.IsUserInExperiment)
		assert.NotNil(t, layer.UndelegatedSecondaryExposures)
	})

	t.Run("User echo strips private attributes", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		assert.Nil(t, response.User.PrivateAttributes)
		assert.Equal(t, "u1", response.User.UserID)
	})

	t.Run("Evaluated keys carry the identity used", func(t *testing.T) {
		eval := newTestEvaluator(t)

		response := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		require.NotNil(t, response)

		assert.Equal(t, "u1", response.EvaluatedKeys["userID"])
		assert.Equal(t, map[string]string{"companyID": "acme"}, response.EvaluatedKeys["customIDs"])
	})

	t.Run("Projection is stable across calls", func(t *testing.T) {
		eval := newTestEvaluator(t)

		first := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")
		second := eval.GetClientInitializeResponse(user, ProjectionOptions{HashAlgorithm: hashing.AlgorithmNone}, "test")

		assert.Equal(t, first.FeatureGates, second.FeatureGates)
		assert.Equal(t, first.DynamicConfigs, second.DynamicConfigs)
		assert.Equal(t, first.LayerConfigs, second.LayerConfigs)
	})
}
