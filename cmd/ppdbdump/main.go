// ppdbdump is a CLI tool for inspecting Portable PDB files and PPDBCache
// lookup artifacts.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/jtang613/goppdb/pkg/ppdb"
	"github.com/jtang613/goppdb/pkg/ppdb/cache"
)

var prettyPrint bool

func main() {
	rootCmd := &cobra.Command{
		Use:          "ppdbdump",
		Short:        "Inspect Portable PDB files and PPDBCache artifacts",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&prettyPrint, "pretty", false, "pretty-print JSON output")

	rootCmd.AddCommand(infoCmd(), documentsCmd(), methodsCmd(), sourceCmd(), cacheCmd(), lookupCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openPPDB(path string) (*ppdb.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ppdb.Parse(data)
}

func outputJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetEscapeHTML(false)
	if prettyPrint {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <ppdb-file>",
		Short: "Show Portable PDB file information",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openPPDB(args[0])
			if err != nil {
				return err
			}
			return outputJSON(map[string]interface{}{
				"version":     f.Version(),
				"debug_id":    f.DebugID(),
				"entry_point": fmt.Sprintf("%#08x", f.EntryPoint()),
				"documents":   f.DocumentCount(),
				"methods":     f.MethodCount(),
			})
		},
	}
}

func documentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "documents <ppdb-file>",
		Short: "List the documents (source files) referenced by the PPDB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openPPDB(args[0])
			if err != nil {
				return err
			}
			docs, err := f.Documents()
			if err != nil {
				return err
			}
			type docOut struct {
				Row      uint32 `json:"row"`
				Name     string `json:"name"`
				Language string `json:"language"`
			}
			out := make([]docOut, 0, len(docs))
			for _, d := range docs {
				out = append(out, docOut{Row: d.Row, Name: d.Name, Language: d.Language.String()})
			}
			return outputJSON(out)
		},
	}
}

func methodsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "methods <ppdb-file>",
		Short: "List every method's sequence points",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openPPDB(args[0])
			if err != nil {
				return err
			}
			type pointOut struct {
				IL     uint32 `json:"il"`
				Doc    uint32 `json:"document"`
				Line   uint32 `json:"line,omitempty"`
				Col    uint16 `json:"col,omitempty"`
				Hidden bool   `json:"hidden,omitempty"`
			}
			type methodOut struct {
				Token  string     `json:"token"`
				Points []pointOut `json:"sequence_points,omitempty"`
				Error  string     `json:"error,omitempty"`
			}

			var out []methodOut
			for row := uint32(1); row <= f.MethodCount(); row++ {
				method, err := f.MethodDebug(row)
				if err != nil {
					return err
				}
				m := methodOut{Token: fmt.Sprintf("%#08x", method.Token())}
				it := method.SequencePoints()
				for it.Next() {
					sp := it.Point()
					m.Points = append(m.Points, pointOut{
						IL: sp.ILOffset, Doc: sp.Document,
						Line: sp.StartLine, Col: sp.StartColumn, Hidden: sp.Hidden,
					})
				}
				if err := it.Err(); err != nil {
					m.Error = err.Error()
				}
				out = append(out, m)
			}
			return outputJSON(out)
		},
	}
}

func sourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "source <ppdb-file> <document-row>",
		Short: "Print a document's embedded source, if present",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openPPDB(args[0])
			if err != nil {
				return err
			}
			row, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return err
			}
			text, err := f.EmbeddedSource(uint32(row))
			if err != nil {
				return err
			}
			if text == nil {
				return fmt.Errorf("document %d has no embedded source", row)
			}
			_, err = os.Stdout.Write(text)
			return err
		},
	}
}

func cacheCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "cache <ppdb-file>",
		Short: "Build a PPDBCache lookup file from a Portable PDB",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := openPPDB(args[0])
			if err != nil {
				return err
			}
			buf, err := cache.Build(f)
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, buf, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(os.Stderr, "wrote %d bytes to %s\n", len(buf), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "ppdb.cache", "output cache file")
	return cmd
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <cache-file> <method-token> <il-offset>",
		Short: "Resolve a method token and IL offset against a PPDBCache",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			c, err := cache.Parse(data)
			if err != nil {
				return err
			}
			token, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				return err
			}
			il, err := strconv.ParseUint(args[2], 0, 32)
			if err != nil {
				return err
			}
			loc, ok := c.Lookup(uint32(token), uint32(il))
			if !ok {
				return fmt.Errorf("no source location for token %#x il %d", token, il)
			}
			return outputJSON(loc)
		},
	}
}
