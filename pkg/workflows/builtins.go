// Package workflows ships the built-in reusable pipeline entry points that
// caller repositories invoke with parameter bindings, plus YAML loading for
// custom definitions.
package workflows

import (
	"fmt"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/registry"
)

// DefaultRef is the moving label the built-in definitions are published
// under. Re-seeding at startup repoints it, which moving labels allow.
const DefaultRef = "main"

// ContinuousIntegration is the shared lint/type-check/test pipeline for
// Python repositories.
func ContinuousIntegration() *models.PipelineDefinition {
	return &models.PipelineDefinition{
		Name:        "continuous-integration",
		Description: "Lint, type-check and test a Python project.",
		Parameters: models.ParameterSchema{
			"python-version":      {Type: models.ParamString, Default: "3.12"},
			"source-dir":          {Type: models.ParamString, Default: "src"},
			"test-dir":            {Type: models.ParamString, Default: "tests"},
			"run-pylint":          {Type: models.ParamBool, Default: true},
			"pylint-target-score": {Type: models.ParamNumber, Default: 9.0},
			"run-mypy":            {Type: models.ParamBool, Default: true},
			"run-ruff":            {Type: models.ParamBool, Default: true},
		},
		Stages: []models.StageSpec{
			{
				Name:   "install",
				Run:    `python${{ inputs.python-version }} -m venv .venv && .venv/bin/pip install -e ".[dev]"`,
				Inputs: []string{"python-version"},
			},
			{
				Name:      "ruff",
				Run:       `if [ "$INPUT_RUN_RUFF" = "true" ]; then .venv/bin/ruff check ${{ inputs.source-dir }}; fi`,
				Inputs:    []string{"run-ruff", "source-dir"},
				Needs:     []string{"install"},
				OnFailure: models.FailContinue,
			},
			{
				Name:      "pylint",
				Run:       `if [ "$INPUT_RUN_PYLINT" = "true" ]; then .venv/bin/pylint --fail-under=${{ inputs.pylint-target-score }} ${{ inputs.source-dir }}; fi`,
				Inputs:    []string{"run-pylint", "pylint-target-score", "source-dir"},
				Needs:     []string{"install"},
				OnFailure: models.FailContinue,
			},
			{
				Name:   "mypy",
				Run:    `if [ "$INPUT_RUN_MYPY" = "true" ]; then .venv/bin/mypy ${{ inputs.source-dir }}; fi`,
				Inputs: []string{"run-mypy", "source-dir"},
				Needs:  []string{"install"},
			},
			{
				Name:   "pytest",
				Run:    `.venv/bin/pytest ${{ inputs.test-dir }}`,
				Inputs: []string{"test-dir"},
				Needs:  []string{"install"},
			},
		},
	}
}

// DockerBuildPush tests the project, then builds and pushes a container
// image. Emits the resolved version string and the pushed image digest.
func DockerBuildPush() *models.PipelineDefinition {
	return &models.PipelineDefinition{
		Name:        "docker-build-push",
		Description: "Test, then build and push a container image.",
		Parameters: models.ParameterSchema{
			"python-version":  {Type: models.ParamString, Default: "3.12"},
			"dockerfile-path": {Type: models.ParamString, Default: "Dockerfile"},
			"registry":        {Type: models.ParamString, Required: true},
			"image-name":      {Type: models.ParamString, Required: true},
		},
		Stages: []models.StageSpec{
			{
				Name:   "test",
				Run:    `python${{ inputs.python-version }} -m venv .venv && .venv/bin/pip install -e ".[dev]" && .venv/bin/pytest`,
				Inputs: []string{"python-version"},
			},
			{
				Name: "build-and-push",
				Run: `VERSION=$(git describe --tags --abbrev=0 | sed 's/^v//') &&
IMAGE=${{ inputs.registry }}/${{ inputs.image-name }} &&
docker build -f ${{ inputs.dockerfile-path }} -t "$IMAGE:$VERSION" . &&
docker push "$IMAGE:$VERSION" &&
DIGEST=$(docker inspect --format='{{index .RepoDigests 0}}' "$IMAGE:$VERSION" | cut -d@ -f2) &&
echo "version=$VERSION" >> "$FLOWLINE_OUTPUT" &&
echo "digest=$DIGEST" >> "$FLOWLINE_OUTPUT"`,
				Inputs:  []string{"dockerfile-path", "registry", "image-name"},
				Outputs: []string{"version", "digest"},
				Needs:   []string{"test"},
			},
		},
	}
}

// PythonWheel builds and publishes a wheel. Emits the resolved version
// string. The pyproject existence check runs as a preflight hook; caller
// repositories with generated sources can declare additional checks on their
// own definitions.
func PythonWheel() *models.PipelineDefinition {
	return &models.PipelineDefinition{
		Name:        "python-wheel",
		Description: "Build and publish a Python wheel.",
		Parameters: models.ParameterSchema{
			"python-version": {Type: models.ParamString, Default: "3.12"},
			"pyproject-path": {Type: models.ParamString, Default: "pyproject.toml"},
		},
		Preflight: []models.PreflightCheck{
			{Name: "project-manifest", Path: "pyproject.toml"},
		},
		Stages: []models.StageSpec{
			{
				Name:    "build",
				Run:     `python${{ inputs.python-version }} -m build --wheel && VERSION=$(python${{ inputs.python-version }} -c "import tomllib;print(tomllib.load(open('${{ inputs.pyproject-path }}','rb'))['project']['version'])") && echo "version=$VERSION" >> "$FLOWLINE_OUTPUT"`,
				Inputs:  []string{"python-version", "pyproject-path"},
				Outputs: []string{"version"},
			},
			{
				Name:  "publish",
				Run:   `twine upload dist/*.whl`,
				Needs: []string{"build"},
			},
		},
	}
}

// CodeQuality runs repository-wide lint hooks. It takes no caller
// parameters; behavior is driven by an optional config file in the caller
// workspace.
func CodeQuality() *models.PipelineDefinition {
	return &models.PipelineDefinition{
		Name:        "code-quality",
		Description: "Run shared code-quality hooks over the repository.",
		Stages: []models.StageSpec{
			{
				Name: "lint",
				Run:  `if [ -f .pre-commit-config.yaml ]; then pre-commit run --all-files; else pre-commit run --all-files --config /etc/flowline/pre-commit-defaults.yaml; fi`,
			},
		},
	}
}

// Builtins returns every built-in entry point.
func Builtins() []*models.PipelineDefinition {
	return []*models.PipelineDefinition{
		ContinuousIntegration(),
		DockerBuildPush(),
		PythonWheel(),
		CodeQuality(),
	}
}

// Register publishes the built-in definitions under the default moving
// label.
func Register(reg *registry.Registry) error {
	for _, def := range Builtins() {
		if err := reg.Publish(def, DefaultRef); err != nil {
			return fmt.Errorf("register builtin %q: %w", def.Name, err)
		}
	}
	return nil
}
