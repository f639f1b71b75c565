package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dhamidi/handlerforge/classfile"
	"github.com/spf13/cobra"
)

func newDumpCmd() *cobra.Command {
	var dumpFormat string

	cmd := &cobra.Command{
		Use:   "dump <file.class>",
		Short: "Dump a class file's shape: interfaces, fields, methods, descriptors",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cf, err := classfile.ParseFile(args[0])
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			switch dumpFormat {
			case "line":
				dumpLine(cf)
			case "json":
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(dumpModel(cf))
			default:
				return fmt.Errorf("unknown format: %s (expected line or json)", dumpFormat)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&dumpFormat, "format", "f", "line", "output format (line, json)")
	return cmd
}

type fieldDump struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	Access     string `json:"access"`
}

type methodDump struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	Access     string `json:"access"`
}

type classDump struct {
	Name       string       `json:"name"`
	Super      string       `json:"super"`
	Interfaces []string     `json:"interfaces"`
	Fields     []fieldDump  `json:"fields"`
	Methods    []methodDump `json:"methods"`
}

func dumpModel(cf *classfile.ClassFile) classDump {
	out := classDump{
		Name:       cf.ClassName(),
		Super:      cf.SuperClassName(),
		Interfaces: cf.InterfaceNames(),
	}
	for i := range cf.Fields {
		f := &cf.Fields[i]
		access := accessString(uint16(f.AccessFlags))
		if f.IsHandlerSlot() {
			access += ",handler-slot"
		}
		out.Fields = append(out.Fields, fieldDump{
			Name:       f.Name(cf.ConstantPool),
			Descriptor: f.Descriptor(cf.ConstantPool),
			Access:     access,
		})
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		out.Methods = append(out.Methods, methodDump{
			Name:       m.Name(cf.ConstantPool),
			Descriptor: m.Descriptor(cf.ConstantPool),
			Access:     accessString(uint16(m.AccessFlags)),
		})
	}
	return out
}

func dumpLine(cf *classfile.ClassFile) {
	fmt.Printf("class %s extends %s\n", cf.ClassName(), cf.SuperClassName())
	for _, iface := range cf.InterfaceNames() {
		fmt.Printf("  implements %s\n", iface)
	}
	for i := range cf.Fields {
		f := &cf.Fields[i]
		access := accessString(uint16(f.AccessFlags))
		if f.IsHandlerSlot() {
			access += ",handler-slot"
		}
		fmt.Printf("  field %s %s %s\n", access, f.Name(cf.ConstantPool), f.Descriptor(cf.ConstantPool))
	}
	for i := range cf.Methods {
		m := &cf.Methods[i]
		fmt.Printf("  method %s %s%s\n", accessString(uint16(m.AccessFlags)), m.Name(cf.ConstantPool), m.Descriptor(cf.ConstantPool))
	}
}

func accessString(flags uint16) string {
	names := []struct {
		bit  uint16
		name string
	}{
		{0x0001, "public"}, {0x0002, "private"}, {0x0004, "protected"},
		{0x0008, "static"}, {0x0010, "final"}, {0x0040, "volatile/bridge"},
		{0x0080, "transient/varargs"}, {0x0100, "native"}, {0x0400, "abstract"},
		{0x1000, "synthetic"},
	}
	out := ""
	for _, n := range names {
		if flags&n.bit != 0 {
			if out != "" {
				out += ","
			}
			out += n.name
		}
	}
	if out == "" {
		return "-"
	}
	return out
}
