// pdbtool inspects and rewrites Microsoft PDB files.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/go-pdb/pdbrw/pkg/pdb"
	"github.com/go-pdb/pdbrw/pkg/pdb/codeview"
	"github.com/go-pdb/pdbrw/pkg/pdb/msf"
)

var (
	prettyPrint bool
	verbose     bool
	log         *zap.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "pdbtool",
		Short:         "Inspect and rewrite Microsoft PDB files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if verbose {
				log, err = zap.NewDevelopment()
			} else {
				log = zap.NewNop()
			}
			return err
		},
	}
	root.PersistentFlags().BoolVar(&prettyPrint, "pretty", false, "pretty-print JSON output")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log debug output")

	root.AddCommand(infoCmd(), streamsCmd(), typesCmd(), symbolsCmd(), copyCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func outputJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetEscapeHTML(false)
	if prettyPrint {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(v)
}

func openPDB(path string) (*pdb.PDB, error) {
	return pdb.Open(path, msf.WithLogger(log), msf.WithBlockCache(64))
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <pdb-file>",
		Short: "Show PDB identity and stream summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPDB(args[0])
			if err != nil {
				return err
			}
			defer p.Close()
			return outputJSON(p.Info())
		},
	}
}

func streamsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "streams <pdb-file>",
		Short: "List container streams",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPDB(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			type streamEntry struct {
				Index  int    `json:"index"`
				Size   uint32 `json:"size"`
				Blocks int    `json:"blocks"`
				Absent bool   `json:"absent,omitempty"`
			}

			m := p.MSF()
			entries := make([]streamEntry, 0, m.NumStreams())
			for i := 0; i < m.NumStreams(); i++ {
				if m.StreamAbsent(i) {
					entries = append(entries, streamEntry{Index: i, Absent: true})
					continue
				}
				s, err := m.Stream(i)
				if err != nil {
					return err
				}
				entries = append(entries, streamEntry{
					Index:  i,
					Size:   s.Size(),
					Blocks: len(s.Blocks()),
				})
			}
			return outputJSON(entries)
		},
	}
}

func typesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "types <pdb-file>",
		Short: "List TPI type records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPDB(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			type typeEntry struct {
				Index uint32 `json:"index"`
				Kind  string `json:"kind"`
				Size  int    `json:"size"`
			}

			records := p.TypeRecords()
			entries := make([]typeEntry, len(records))
			for i, rec := range records {
				entries[i] = typeEntry{
					Index: rec.Index,
					Kind:  codeview.LeafKindName(rec.Record.Kind),
					Size:  rec.Record.EncodedSize(),
				}
			}
			return outputJSON(entries)
		},
	}
}

func symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <pdb-file>",
		Short: "List functions, variables, and public symbols",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := openPDB(args[0])
			if err != nil {
				return err
			}
			defer p.Close()

			functions, err := p.Functions()
			if err != nil {
				return err
			}
			variables, err := p.Variables()
			if err != nil {
				return err
			}
			publics, err := p.PublicSymbols()
			if err != nil {
				return err
			}

			return outputJSON(map[string]any{
				"functions":      functions,
				"variables":      variables,
				"public_symbols": publics,
			})
		},
	}
}

func copyCmd() *cobra.Command {
	var blockSize uint32

	cmd := &cobra.Command{
		Use:   "copy <src-pdb> <dst-pdb>",
		Short: "Rewrite a PDB through the container writer",
		Long: `Reads every stream of the source container and writes a fresh container
holding the same streams. Absent stream slots stay absent. Useful for
compacting a file or changing its block size.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := msf.Open(args[0], msf.WithLogger(log))
			if err != nil {
				return err
			}
			defer m.Close()

			w := msf.NewWriter(msf.WithBlockSize(blockSize), msf.WithWriteLogger(log))
			for i := 0; i < m.NumStreams(); i++ {
				if m.StreamAbsent(i) {
					if err := w.AddAbsentStream(i); err != nil {
						return err
					}
					continue
				}
				s, err := m.Stream(i)
				if err != nil {
					return err
				}
				data, err := s.ReadAll()
				if err != nil {
					return fmt.Errorf("failed to read stream %d: %w", i, err)
				}
				if err := w.AddStream(i, data); err != nil {
					return err
				}
			}
			return w.Finish(args[1])
		},
	}
	cmd.Flags().Uint32Var(&blockSize, "block-size", msf.DefaultBlockSize, "block size of the written container")
	return cmd
}
