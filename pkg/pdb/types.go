// Package pdb provides high-level access to Microsoft PDB debug files:
// reading existing files and building new ones stream by stream.
package pdb

// Function represents a function/procedure symbol.
type Function struct {
	Name      string `json:"name"`
	Offset    uint32 `json:"offset"`
	Segment   uint16 `json:"segment"`
	Length    uint32 `json:"length"`
	TypeIndex uint32 `json:"type_index"`
	IsGlobal  bool   `json:"is_global"`
	Module    string `json:"module,omitempty"`
}

// Variable represents a data/variable symbol.
type Variable struct {
	Name      string `json:"name"`
	Offset    uint32 `json:"offset"`
	Segment   uint16 `json:"segment"`
	TypeIndex uint32 `json:"type_index"`
	TypeName  string `json:"type_name,omitempty"`
	IsGlobal  bool   `json:"is_global"`
	Module    string `json:"module,omitempty"`
}

// PublicSymbol represents a public symbol from the symbol record stream.
type PublicSymbol struct {
	Name    string `json:"name"`
	Offset  uint32 `json:"offset"`
	Segment uint16 `json:"segment"`
}

// Module represents information about a compiled module.
type Module struct {
	Name         string `json:"name"`
	ObjectFile   string `json:"object_file"`
	SymbolStream uint16 `json:"symbol_stream"`
	SymbolSize   uint32 `json:"symbol_size"`
	SourceFiles  uint16 `json:"source_files"`
}

// Info contains basic PDB file information.
type Info struct {
	GUID         string            `json:"guid"`
	Age          uint32            `json:"age"`
	Version      uint32            `json:"version"`
	Signature    uint32            `json:"signature"`
	Machine      string            `json:"machine"`
	Streams      int               `json:"streams"`
	NamedStreams map[string]uint32 `json:"named_streams,omitempty"`
}
