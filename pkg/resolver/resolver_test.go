package resolver

import (
	"path/filepath"
	"testing"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/registry"
	"github.com/Promptonauts/flowline/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T) *Resolver {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "resolver.db"))
	require.NoError(t, err)
	require.NoError(t, st.Migrate())
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st)
	def := &models.PipelineDefinition{
		Name: "docker-build",
		Parameters: models.ParameterSchema{
			"python-version": {Type: models.ParamString, Default: "3.12"},
			"image-name":     {Type: models.ParamString, Required: true},
			"push":           {Type: models.ParamBool, Default: true},
			"target-score":   {Type: models.ParamNumber, Default: 9.0},
		},
		Stages: []models.StageSpec{
			{Name: "build", Run: "docker build .", Inputs: []string{"python-version", "image-name"}},
		},
	}
	require.NoError(t, reg.Publish(def, "v1.0.0"))
	return New(reg)
}

func TestPlanBindsSuppliedValuesAndDefaults(t *testing.T) {
	res := newTestResolver(t)

	plan, err := res.Plan("docker-build", "v1.0.0", models.BindingSet{"image-name": "org/app"})
	require.NoError(t, err)

	assert.Equal(t, "3.12", plan.Bindings["python-version"])
	assert.Equal(t, "org/app", plan.Bindings["image-name"])
	assert.Equal(t, true, plan.Bindings["push"])
	assert.Equal(t, 9.0, plan.Bindings["target-score"])
	assert.Equal(t, "v1.0.0", plan.Pipeline.Version)
	assert.NotEmpty(t, plan.ID)
}

func TestPlanMissingRequiredParameter(t *testing.T) {
	res := newTestResolver(t)

	_, err := res.Plan("docker-build", "v1.0.0", nil)
	var missing *models.MissingParameterError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, "image-name", missing.Param)
}

func TestPlanUnknownParameter(t *testing.T) {
	res := newTestResolver(t)

	_, err := res.Plan("docker-build", "v1.0.0", models.BindingSet{
		"image-name": "org/app",
		"imagename":  "typo",
	})
	var unknown *models.UnknownParameterError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "imagename", unknown.Param)
}

func TestPlanTypeChecksBindings(t *testing.T) {
	res := newTestResolver(t)

	_, err := res.Plan("docker-build", "v1.0.0", models.BindingSet{
		"image-name": "org/app",
		"push":       "yes",
	})
	var mismatch *models.TypeMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "push", mismatch.Param)
	assert.Equal(t, models.ParamBool, mismatch.Want)
}

func TestPlanAcceptsIntegerForNumberParameter(t *testing.T) {
	res := newTestResolver(t)

	plan, err := res.Plan("docker-build", "v1.0.0", models.BindingSet{
		"image-name":   "org/app",
		"target-score": 8,
	})
	require.NoError(t, err)
	assert.Equal(t, 8.0, plan.Bindings["target-score"])
}

func TestPlanUnknownPipeline(t *testing.T) {
	res := newTestResolver(t)

	_, err := res.Plan("ghost", "v1.0.0", nil)
	var nf *models.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestPlanIsDeterministic(t *testing.T) {
	res := newTestResolver(t)
	bindings := models.BindingSet{"image-name": "org/app"}

	first, err := res.Plan("docker-build", "v1.0.0", bindings)
	require.NoError(t, err)
	second, err := res.Plan("docker-build", "v1.0.0", bindings)
	require.NoError(t, err)

	// Identical inputs resolve to structurally identical plans; only the
	// ID/timestamp envelope differs.
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Pipeline, second.Pipeline)
	assert.Equal(t, first.Bindings, second.Bindings)
	assert.Equal(t, first.Fingerprint(), second.Fingerprint())
	assert.NotEmpty(t, first.Fingerprint())
}
