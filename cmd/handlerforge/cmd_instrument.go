package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dhamidi/handlerforge/classfile"
	"github.com/dhamidi/handlerforge/handlerspec"
	"github.com/dhamidi/handlerforge/instrument"
	"github.com/spf13/cobra"
)

func newInstrumentCmd() *cobra.Command {
	var handlerPath string
	var handleePaths []string
	var outDir string
	var spawnerOwner string
	var spawnerMethod string
	var nativePrefix string

	cmd := &cobra.Command{
		Use:   "instrument",
		Short: "Instrument one or more handlee class files against a handler interface",
		RunE: func(cmd *cobra.Command, args []string) error {
			if handlerPath == "" {
				return fmt.Errorf("--handler is required")
			}
			if len(handleePaths) == 0 {
				return fmt.Errorf("at least one --handlee is required")
			}

			handlerClass, err := classfile.ParseFile(handlerPath)
			if err != nil {
				return fmt.Errorf("parse handler interface %s: %w", handlerPath, err)
			}

			opts := handlerspec.Options{NativePrefix: nativePrefix, AgentCapableBaseline: 49}
			if spawnerOwner != "" {
				handlerDesc := "L" + handlerClass.ClassName() + ";"
				opts.Spawner = &handlerspec.SpawnerRef{
					Owner:      spawnerOwner,
					Name:       spawnerMethod,
					Descriptor: classfile.SpawnerDescriptor(handlerDesc),
				}
			}

			spec, _, err := handlerspec.Analyze(handlerClass, opts)
			if err != nil {
				return fmt.Errorf("analyze handler interface %s: %w", handlerPath, err)
			}

			if outDir != "" {
				if err := os.MkdirAll(outDir, 0755); err != nil {
					return fmt.Errorf("create output directory: %w", err)
				}
			}

			for _, handleePath := range handleePaths {
				cf, err := classfile.ParseFile(handleePath)
				if err != nil {
					return fmt.Errorf("parse handlee %s: %w", handleePath, err)
				}
				if err := instrument.Instrument(cf, spec); err != nil {
					return fmt.Errorf("instrument %s: %w", handleePath, err)
				}

				out, err := classfile.Encode(cf)
				if err != nil {
					return fmt.Errorf("encode %s: %w", handleePath, err)
				}

				dest := handleePath
				if outDir != "" {
					dest = filepath.Join(outDir, filepath.Base(handleePath))
				}
				if err := os.WriteFile(dest, out, 0644); err != nil {
					return fmt.Errorf("write %s: %w", dest, err)
				}
				fmt.Printf("Instrumented %s -> %s\n", handleePath, dest)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&handlerPath, "handler", "", "handler interface .class file")
	cmd.Flags().StringArrayVar(&handleePaths, "handlee", nil, "handlee .class file (repeatable)")
	cmd.Flags().StringVarP(&outDir, "output", "o", "", "output directory (defaults to overwriting each handlee in place)")
	cmd.Flags().StringVar(&spawnerOwner, "spawner-owner", "", "internal name of the spawner's owning class")
	cmd.Flags().StringVar(&spawnerMethod, "spawner-method", "", "name of the static spawner method")
	cmd.Flags().StringVar(&nativePrefix, "native-prefix", "", "prefix applied to renamed native methods when wrapping")

	return cmd
}
