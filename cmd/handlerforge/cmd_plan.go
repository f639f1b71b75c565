package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dhamidi/handlerforge/agent"
	"github.com/spf13/cobra"
)

// dirAmbientSource resolves a binary name to bytes by looking for
// "<dir>/<name-with-dots-or-slashes-replaced-by-the-path-separator>.class"
// across a list of classpath directories, trying both the dotted and
// slashed form of the name since callers may hand either one.
type dirAmbientSource struct {
	dirs []string
}

func (d dirAmbientSource) Bytes(binaryName string) ([]byte, bool) {
	candidates := []string{
		strings.ReplaceAll(binaryName, ".", string(filepath.Separator)) + ".class",
		strings.ReplaceAll(binaryName, "/", string(filepath.Separator)) + ".class",
	}
	for _, dir := range d.dirs {
		for _, rel := range candidates {
			data, err := os.ReadFile(filepath.Join(dir, rel))
			if err == nil {
				return data, true
			}
		}
	}
	return nil, false
}

func newPlanCmd() *cobra.Command {
	var classpath []string

	cmd := &cobra.Command{
		Use:   "plan <config-string-or-manifest.toml>",
		Short: "Build and print the Instrumentation Plan for a configuration string or handlerforge.toml manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source := dirAmbientSource{dirs: classpath}

			var a *agent.Agent
			if strings.HasSuffix(args[0], ".toml") {
				manifest, err := agent.LoadManifest(args[0])
				if err != nil {
					return err
				}
				if diags := agent.Diagnose(source, manifest); len(diags) > 0 {
					for _, d := range diags {
						fmt.Fprintf(os.Stderr, "%s: %s: %s: %s\n", d.Severity, d.Class, d.Operation, d.Message)
					}
					return fmt.Errorf("plan construction failed with %d diagnostic(s)", len(diags))
				}
				a, err = agent.NewFromManifest(source, manifest)
				if err != nil {
					return err
				}
			} else {
				var err error
				a, err = agent.NewFromConfig(source, args[0])
				if err != nil {
					return err
				}
			}

			plan, err := a.Plan()
			if err != nil {
				return err
			}

			handlees := make([]string, 0, len(plan))
			for h := range plan {
				handlees = append(handlees, h)
			}
			sort.Strings(handlees)
			for _, h := range handlees {
				spec := plan[h]
				fmt.Printf("%s -> %s (policy=%s, intercepted=%d)\n", h, spec.HandlerType, spec.NullGuard, len(spec.InterceptedSignatures))
			}
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&classpath, "classpath", []string{"."}, "directories to search for handler interface .class files")

	return cmd
}
