package pdb

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/go-pdb/pdbrw/pkg/pdb/codeview"
	"github.com/go-pdb/pdbrw/pkg/pdb/msf"
	"github.com/go-pdb/pdbrw/pkg/pdb/streams"
)

// Streams the builder lays out after the well-known ones.
const (
	builderStreamTPIHash = 5
	builderStreamIPIHash = 6
	builderStreamSymbols = 7
)

// Builder assembles a complete PDB file: info, TPI, IPI, and DBI streams plus
// an optional global symbol record stream, committed through the container
// writer in one pass.
type Builder struct {
	Info *streams.InfoBuilder
	TPI  *streams.TPIBuilder
	IPI  *streams.TPIBuilder
	DBI  *streams.DBIBuilder

	symbols []codeview.Record
	log     *zap.Logger
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithBuildLogger attaches a logger to the builder and its container writer.
func WithBuildLogger(log *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if log != nil {
			b.log = log
		}
	}
}

// NewBuilder creates a builder for a fresh PDB with a random identity.
func NewBuilder(machine uint16, opts ...BuilderOption) *Builder {
	b := &Builder{
		Info: streams.NewInfoBuilder(uuid.New(), uint32(time.Now().Unix())),
		TPI:  streams.NewTPIBuilder(),
		IPI:  streams.NewTPIBuilder(),
		DBI:  streams.NewDBIBuilder(machine),
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// AddType appends a type record to the TPI stream and returns its type index.
func (b *Builder) AddType(rec codeview.Record) (uint32, error) {
	return b.TPI.Add(rec)
}

// AddID appends an ID record to the IPI stream and returns its index.
func (b *Builder) AddID(rec codeview.Record) (uint32, error) {
	return b.IPI.Add(rec)
}

// AddSymbol appends a record to the global symbol record stream.
func (b *Builder) AddSymbol(rec codeview.Record) {
	b.symbols = append(b.symbols, rec)
}

// Commit writes the PDB to a new file at path.
func (b *Builder) Commit(path string, opts ...msf.WriterOption) error {
	tpiStream, tpiHash, err := b.TPI.Build(builderStreamTPIHash)
	if err != nil {
		return fmt.Errorf("failed to build TPI stream: %w", err)
	}
	ipiStream, ipiHash, err := b.IPI.Build(builderStreamIPIHash)
	if err != nil {
		return fmt.Errorf("failed to build IPI stream: %w", err)
	}

	var symData []byte
	if len(b.symbols) > 0 {
		if symData, err = codeview.EncodeRecords(b.symbols); err != nil {
			return fmt.Errorf("failed to encode symbol records: %w", err)
		}
		b.DBI.SymRecordStream = builderStreamSymbols
	}

	w := msf.NewWriter(append(opts, msf.WithWriteLogger(b.log))...)

	// Stream 0 is reserved for the previous directory; a fresh file has none.
	w.AddStream(StreamPrevDirectory, nil)
	w.AddStream(StreamPDB, b.Info.Build())
	w.AddStream(StreamTPI, tpiStream)
	w.AddStream(StreamDBI, b.DBI.Build())
	w.AddStream(StreamIPI, ipiStream)
	w.AddStream(builderStreamTPIHash, tpiHash)
	w.AddStream(builderStreamIPIHash, ipiHash)
	if len(b.symbols) > 0 {
		w.AddStream(builderStreamSymbols, symData)
	}

	if err := w.Finish(path); err != nil {
		return fmt.Errorf("failed to write PDB: %w", err)
	}

	b.log.Info("committed PDB",
		zap.String("path", path),
		zap.Uint32("types", b.TPI.Count()),
		zap.Uint32("ids", b.IPI.Count()),
		zap.Int("symbols", len(b.symbols)))
	return nil
}
