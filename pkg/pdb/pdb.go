package pdb

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/go-pdb/pdbrw/pkg/pdb/codeview"
	"github.com/go-pdb/pdbrw/pkg/pdb/msf"
	"github.com/go-pdb/pdbrw/pkg/pdb/streams"
)

// Well-known stream indices. Stream 0 holds the previous directory and is
// meaningless after a fresh write.
const (
	StreamPrevDirectory = 0
	StreamPDB           = 1 // PDB info stream
	StreamTPI           = 2 // type info stream
	StreamDBI           = 3 // debug info stream
	StreamIPI           = 4 // ID info stream
)

// PDB represents an opened PDB file.
type PDB struct {
	msf  *msf.MSF
	info *streams.PDBInfo
	tpi  *streams.TPIStream
	ipi  *streams.TPIStream
	dbi  *streams.DBIStream
}

// Open opens a PDB file and parses its core streams. Streams that are absent
// are tolerated; streams that are present but malformed are an error.
func Open(path string, opts ...msf.Option) (*PDB, error) {
	m, err := msf.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open MSF: %w", err)
	}

	pdb := &PDB{msf: m}
	if err := pdb.parseStreams(); err != nil {
		m.Close()
		return nil, err
	}
	return pdb, nil
}

func (p *PDB) parseStreams() error {
	data, err := p.streamData(StreamPDB)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		info, err := streams.ReadPDBInfo(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to parse PDB info stream: %w", err)
		}
		p.info = info
	}

	if data, err = p.streamData(StreamTPI); err != nil {
		return err
	}
	if len(data) > 0 {
		tpi, err := streams.ReadTPIStream(data)
		if err != nil {
			return fmt.Errorf("failed to parse TPI stream: %w", err)
		}
		p.tpi = tpi
	}

	if data, err = p.streamData(StreamDBI); err != nil {
		return err
	}
	if len(data) > 0 {
		dbi, err := streams.ReadDBIStream(data)
		if err != nil {
			return fmt.Errorf("failed to parse DBI stream: %w", err)
		}
		p.dbi = dbi
	}

	// The IPI stream only exists when the info stream declares it.
	if p.info != nil && p.info.HasIPI() {
		if data, err = p.streamData(StreamIPI); err != nil {
			return err
		}
		if len(data) > 0 {
			ipi, err := streams.ReadTPIStream(data)
			if err != nil {
				return fmt.Errorf("failed to parse IPI stream: %w", err)
			}
			p.ipi = ipi
		}
	}

	return nil
}

// streamData returns the full contents of a stream, or (nil, nil) for absent
// and out-of-range slots.
func (p *PDB) streamData(index int) ([]byte, error) {
	s, err := p.msf.Stream(index)
	if err != nil {
		if errors.Is(err, msf.ErrNoSuchStream) {
			return nil, nil
		}
		return nil, err
	}
	return s.ReadAll()
}

// Close closes the PDB file.
func (p *PDB) Close() error {
	if p.msf != nil {
		return p.msf.Close()
	}
	return nil
}

// MSF exposes the underlying container.
func (p *PDB) MSF() *msf.MSF {
	return p.msf
}

// Info returns basic PDB file information.
func (p *PDB) Info() *Info {
	info := &Info{
		Streams: p.msf.NumStreams(),
	}

	if p.info != nil {
		info.GUID = p.info.GUIDString()
		info.Age = p.info.Age
		info.Version = p.info.Version
		info.Signature = p.info.Signature
		info.NamedStreams = p.info.NamedStreams
	}
	if p.dbi != nil {
		info.Machine = streams.MachineTypeName(p.dbi.Header.Machine)
	}
	return info
}

// TypeRecords returns the records of the TPI stream.
func (p *PDB) TypeRecords() []streams.TypeRecord {
	if p.tpi == nil {
		return nil
	}
	return p.tpi.TypeRecords
}

// IDRecords returns the records of the IPI stream.
func (p *PDB) IDRecords() []streams.TypeRecord {
	if p.ipi == nil {
		return nil
	}
	return p.ipi.TypeRecords
}

// TypeCount returns the number of types in the TPI stream.
func (p *PDB) TypeCount() int {
	if p.tpi == nil {
		return 0
	}
	return p.tpi.NumTypes()
}

// GetType returns the TPI record for a type index, or nil.
func (p *PDB) GetType(index uint32) *streams.TypeRecord {
	if p.tpi == nil {
		return nil
	}
	return p.tpi.GetType(index)
}

// Symbols returns the records of the global symbol record stream, or nil when
// the DBI stream does not name one.
func (p *PDB) Symbols() ([]codeview.Record, error) {
	if p.dbi == nil || p.dbi.Header.SymRecordStream == streams.NoDebugStream {
		return nil, nil
	}
	data, err := p.streamData(int(p.dbi.Header.SymRecordStream))
	if err != nil || data == nil {
		return nil, err
	}
	return codeview.ParseSymbols(data)
}

// Functions returns the procedure symbols from the symbol record stream and
// every module symbol stream.
func (p *PDB) Functions() ([]Function, error) {
	var functions []Function
	err := p.eachSymbol(func(module string, rec codeview.Record) error {
		if !codeview.IsProcSymbol(rec.Kind) {
			return nil
		}
		proc, err := codeview.ParseProcSym(rec)
		if err != nil {
			return err
		}
		functions = append(functions, Function{
			Name:      proc.Name,
			Offset:    proc.Offset,
			Segment:   proc.Segment,
			Length:    proc.Length,
			TypeIndex: proc.TypeIndex,
			IsGlobal:  codeview.IsGlobalSymbol(rec.Kind),
			Module:    module,
		})
		return nil
	})
	return functions, err
}

// Variables returns the data symbols from the symbol record stream and every
// module symbol stream.
func (p *PDB) Variables() ([]Variable, error) {
	var variables []Variable
	err := p.eachSymbol(func(module string, rec codeview.Record) error {
		if !codeview.IsDataSymbol(rec.Kind) {
			return nil
		}
		data, err := codeview.ParseDataSym(rec)
		if err != nil {
			return err
		}
		v := Variable{
			Name:      data.Name,
			Offset:    data.Offset,
			Segment:   data.Segment,
			TypeIndex: data.TypeIndex,
			IsGlobal:  codeview.IsGlobalSymbol(rec.Kind),
			Module:    module,
		}
		if data.TypeIndex < codeview.TypeIndexBegin {
			v.TypeName = codeview.BuiltinTypeName(data.TypeIndex)
		}
		variables = append(variables, v)
		return nil
	})
	return variables, err
}

// PublicSymbols returns the S_PUB32 symbols from the symbol record stream.
func (p *PDB) PublicSymbols() ([]PublicSymbol, error) {
	records, err := p.Symbols()
	if err != nil {
		return nil, err
	}

	var publics []PublicSymbol
	for _, rec := range records {
		if rec.Kind != codeview.S_PUB32 {
			continue
		}
		pub, err := codeview.ParsePubSym(rec)
		if err != nil {
			return nil, err
		}
		publics = append(publics, PublicSymbol{
			Name:    pub.Name,
			Offset:  pub.Offset,
			Segment: pub.Segment,
		})
	}
	return publics, nil
}

// eachSymbol visits the global symbol record stream, then each module's
// symbol stream.
func (p *PDB) eachSymbol(visit func(module string, rec codeview.Record) error) error {
	records, err := p.Symbols()
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := visit("", rec); err != nil {
			return err
		}
	}

	if p.dbi == nil {
		return nil
	}
	for _, mod := range p.dbi.Modules {
		if !mod.HasSymbols() {
			continue
		}
		data, err := p.streamData(int(mod.ModuleSymStream))
		if err != nil {
			return fmt.Errorf("module %q symbols: %w", mod.ModuleName, err)
		}
		if data == nil {
			continue
		}
		if uint32(len(data)) > mod.SymByteSize {
			data = data[:mod.SymByteSize]
		}
		records, err := codeview.ParseSymbols(data)
		if err != nil {
			return fmt.Errorf("module %q symbols: %w", mod.ModuleName, err)
		}
		for _, rec := range records {
			if err := visit(mod.ModuleName, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// Modules returns information about compiled modules.
func (p *PDB) Modules() []Module {
	if p.dbi == nil {
		return nil
	}

	modules := make([]Module, len(p.dbi.Modules))
	for i, mod := range p.dbi.Modules {
		modules[i] = Module{
			Name:         mod.ModuleName,
			ObjectFile:   mod.ObjFileName,
			SymbolStream: mod.ModuleSymStream,
			SymbolSize:   mod.SymByteSize,
			SourceFiles:  mod.SourceFileCount,
		}
	}
	return modules
}
