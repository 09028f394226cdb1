package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Promptonauts/flowline/pkg/models"
	"github.com/Promptonauts/flowline/pkg/workflows"
	"github.com/spf13/cobra"
)

func newPublishCommand() *cobra.Command {
	var (
		file string
		ref  string
	)
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish a pipeline definition from a YAML file",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(false)
			if err != nil {
				return err
			}
			defer e.close()

			def, err := workflows.Load(file)
			if err != nil {
				return err
			}
			if err := e.registry.Publish(def, ref); err != nil {
				return err
			}
			fmt.Printf("published %s @ %s\n", def.Name, ref)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "pipeline.yaml", "pipeline definition file")
	cmd.Flags().StringVar(&ref, "ref", "", "version tag (vX.Y.Z) or moving label")
	_ = cmd.MarkFlagRequired("ref")
	return cmd
}

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List published pipelines",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(true)
			if err != nil {
				return err
			}
			defer e.close()

			infos, err := e.registry.List()
			if err != nil {
				return err
			}
			for _, info := range infos {
				kind := "label"
				if info.Immutable {
					kind = "tag"
				}
				fmt.Printf("%-28s %-12s %s\n", info.Name, info.Ref, kind)
			}
			return nil
		},
	}
}

// parseBindings converts --set key=value pairs using the schema's declared
// types, so `--set run-pylint=false` becomes a boolean and
// `--set pylint-target-score=8.5` a number.
func parseBindings(schema models.ParameterSchema, pairs []string) (models.BindingSet, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	bindings := make(models.BindingSet, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("malformed binding %q, want key=value", pair)
		}
		spec, known := schema[key]
		if !known {
			// Let the resolver produce its UnknownParameterError.
			bindings[key] = raw
			continue
		}
		switch spec.Type {
		case models.ParamBool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return nil, fmt.Errorf("binding %q: %q is not a boolean", key, raw)
			}
			bindings[key] = b
		case models.ParamNumber:
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("binding %q: %q is not a number", key, raw)
			}
			bindings[key] = n
		default:
			bindings[key] = raw
		}
	}
	return bindings, nil
}
