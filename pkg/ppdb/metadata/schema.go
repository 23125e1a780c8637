package metadata

// Coded-index target lists from ECMA-335 II.24.2.6 and the Portable PDB
// spec. Order matters: a target's position is its tag value.
var (
	typeDefOrRef       = []TableType{TableTypeDef, TableTypeRef, TableTypeSpec}
	hasConstant        = []TableType{TableField, TableParam, TableProperty}
	hasCustomAttribute = []TableType{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec,
	}
	hasFieldMarshal     = []TableType{TableField, TableParam}
	hasDeclSecurity     = []TableType{TableTypeDef, TableMethodDef, TableAssembly}
	memberRefParent     = []TableType{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}
	hasSemantics        = []TableType{TableEvent, TableProperty}
	methodDefOrRef      = []TableType{TableMethodDef, TableMemberRef}
	memberForwarded     = []TableType{TableField, TableMethodDef}
	implementation      = []TableType{TableFile, TableAssemblyRef, TableExportedType}
	customAttributeType = []TableType{tableNone, tableNone, TableMethodDef, TableMemberRef, tableNone}
	resolutionScope     = []TableType{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}
	typeOrMethodDef     = []TableType{TableTypeDef, TableMethodDef}

	// HasCustomDebugInformation from the Portable PDB spec: 27 targets,
	// 5 tag bits.
	hasCustomDebugInformation = []TableType{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef,
		TableTypeSpec, TableAssembly, TableAssemblyRef, TableFile,
		TableExportedType, TableManifestResource, TableGenericParam,
		TableGenericParamConstraint, TableMethodSpec, TableDocument,
		TableLocalScope, TableLocalVariable, TableLocalConstant,
		TableImportScope,
	}
)

// HasCustomDebugInformationTag returns the coded-index tag for tt as a
// HasCustomDebugInformation target, or -1 if tt cannot carry custom debug
// information.
func HasCustomDebugInformationTag(tt TableType) int {
	for tag, target := range hasCustomDebugInformation {
		if target == tt {
			return tag
		}
	}
	return -1
}

// hasCustomDebugInformationTagBits is the tag width of the
// HasCustomDebugInformation coded index.
var hasCustomDebugInformationTagBits = tagBits(len(hasCustomDebugInformation))

// DecodeHasCustomDebugInformation splits a HasCustomDebugInformation coded
// index into its target table and 1-based row.
func DecodeHasCustomDebugInformation(coded uint32) (TableType, uint32) {
	tag := coded & (1<<hasCustomDebugInformationTagBits - 1)
	return hasCustomDebugInformation[tag], coded >> hasCustomDebugInformationTagBits
}

// EncodeHasCustomDebugInformation builds the coded index referencing the
// given 1-based row of tt. tt must be a valid target.
func EncodeHasCustomDebugInformation(tt TableType, row uint32) uint32 {
	tag := HasCustomDebugInformationTag(tt)
	if tag < 0 {
		panic("table cannot carry custom debug information")
	}
	return row<<hasCustomDebugInformationTagBits | uint32(tag)
}

// resolveLayouts assigns every table its column widths. Index columns take
// their width from the heap-size bits, the referenced table's row count, or
// the widest member of a coded-index target list.
func (s *TableStream) resolveLayouts(ref *[tableCount]uint32) {
	str := s.stringIndexSize()
	guid := s.guidIndexSize()
	blob := s.blobIndexSize()
	idx := func(tt TableType) int { return s.tableIndexSize(tt, ref) }
	coded := func(targets []TableType) int { return s.codedIndexSize(ref, targets...) }

	s.tables[TableModule].setColumns(2, str, guid, guid, guid)
	s.tables[TableTypeRef].setColumns(coded(resolutionScope), str, str)
	s.tables[TableTypeDef].setColumns(4, str, str, coded(typeDefOrRef), idx(TableField), idx(TableMethodDef))
	s.tables[TableField].setColumns(2, str, blob)
	s.tables[TableMethodDef].setColumns(4, 2, 2, str, blob, idx(TableParam))
	s.tables[TableParam].setColumns(2, 2, str)
	s.tables[TableInterfaceImpl].setColumns(idx(TableTypeDef), coded(typeDefOrRef))
	s.tables[TableMemberRef].setColumns(coded(memberRefParent), str, blob)
	s.tables[TableConstant].setColumns(2, coded(hasConstant), blob)
	s.tables[TableCustomAttribute].setColumns(coded(hasCustomAttribute), coded(customAttributeType), blob)
	s.tables[TableFieldMarshal].setColumns(coded(hasFieldMarshal), blob)
	s.tables[TableDeclSecurity].setColumns(2, coded(hasDeclSecurity), blob)
	s.tables[TableClassLayout].setColumns(2, 4, idx(TableTypeDef))
	s.tables[TableFieldLayout].setColumns(4, idx(TableField))
	s.tables[TableStandAloneSig].setColumns(blob)
	s.tables[TableEventMap].setColumns(idx(TableTypeDef), idx(TableEvent))
	s.tables[TableEvent].setColumns(2, str, coded(typeDefOrRef))
	s.tables[TablePropertyMap].setColumns(idx(TableTypeDef), idx(TableProperty))
	s.tables[TableProperty].setColumns(2, str, blob)
	s.tables[TableMethodSemantics].setColumns(2, idx(TableMethodDef), coded(hasSemantics))
	s.tables[TableMethodImpl].setColumns(idx(TableTypeDef), coded(methodDefOrRef), coded(methodDefOrRef))
	s.tables[TableModuleRef].setColumns(str)
	s.tables[TableTypeSpec].setColumns(blob)
	s.tables[TableImplMap].setColumns(2, coded(memberForwarded), str, idx(TableModuleRef))
	s.tables[TableFieldRVA].setColumns(4, idx(TableField))
	s.tables[TableAssembly].setColumns(4, 8, 4, blob, str, str)
	s.tables[TableAssemblyProcessor].setColumns(4)
	s.tables[TableAssemblyOS].setColumns(4, 4, 4)
	s.tables[TableAssemblyRef].setColumns(8, 4, blob, str, str, blob)
	s.tables[TableAssemblyRefProcessor].setColumns(4, idx(TableAssemblyRef))
	s.tables[TableAssemblyRefOS].setColumns(4, 4, 4, idx(TableAssemblyRef))
	s.tables[TableFile].setColumns(4, str, blob)
	s.tables[TableExportedType].setColumns(4, 4, str, str, coded(implementation))
	s.tables[TableManifestResource].setColumns(4, 4, str, coded(implementation))
	s.tables[TableNestedClass].setColumns(idx(TableTypeDef), idx(TableTypeDef))
	s.tables[TableGenericParam].setColumns(2, 2, coded(typeOrMethodDef), str)
	s.tables[TableMethodSpec].setColumns(coded(methodDefOrRef), blob)
	s.tables[TableGenericParamConstraint].setColumns(idx(TableGenericParam), coded(typeDefOrRef))

	// Indirection and edit-and-continue tables.
	s.tables[TableType(0x03)].setColumns(idx(TableField))     // FieldPtr
	s.tables[TableType(0x05)].setColumns(idx(TableMethodDef)) // MethodPtr
	s.tables[TableType(0x07)].setColumns(idx(TableParam))     // ParamPtr
	s.tables[TableType(0x13)].setColumns(idx(TableEvent))     // EventPtr
	s.tables[TableType(0x16)].setColumns(idx(TableProperty))  // PropertyPtr
	s.tables[TableType(0x1E)].setColumns(4, 4)                // EncLog
	s.tables[TableType(0x1F)].setColumns(4)                   // EncMap

	s.tables[TableDocument].setColumns(blob, guid, blob, guid)
	s.tables[TableMethodDebugInformation].setColumns(idx(TableDocument), blob)
	s.tables[TableLocalScope].setColumns(idx(TableMethodDef), idx(TableImportScope), idx(TableLocalVariable), idx(TableLocalConstant), 4, 4)
	s.tables[TableLocalVariable].setColumns(2, 2, str)
	s.tables[TableLocalConstant].setColumns(str, blob)
	s.tables[TableImportScope].setColumns(idx(TableImportScope), blob)
	s.tables[TableStateMachineMethod].setColumns(idx(TableMethodDef), idx(TableMethodDef))
	s.tables[TableCustomDebugInformation].setColumns(coded(hasCustomDebugInformation), guid, blob)
}

// DocumentRow is a decoded Document table row.
type DocumentRow struct {
	// Name is a blob offset of the document-name blob.
	Name uint32
	// HashAlgorithm is a 1-based GUID index.
	HashAlgorithm uint32
	// Hash is a blob offset.
	Hash uint32
	// Language is a 1-based GUID index.
	Language uint32
}

// DocumentRow decodes the given 1-based Document row.
func (s *TableStream) DocumentRow(index uint32) (DocumentRow, error) {
	t := s.Table(TableDocument)
	var row DocumentRow
	var err error
	if row.Name, err = t.Cell(index, 0); err != nil {
		return row, err
	}
	if row.HashAlgorithm, err = t.Cell(index, 1); err != nil {
		return row, err
	}
	if row.Hash, err = t.Cell(index, 2); err != nil {
		return row, err
	}
	row.Language, err = t.Cell(index, 3)
	return row, err
}

// MethodDebugInformationRow is a decoded MethodDebugInformation table row.
type MethodDebugInformationRow struct {
	// Document is a 1-based Document row, or 0 when the method spans
	// documents (the sequence-points blob then opens with a document
	// record).
	Document uint32
	// SequencePoints is a blob offset, or 0 when the method has none.
	SequencePoints uint32
}

// MethodDebugInformationRow decodes the given 1-based row.
func (s *TableStream) MethodDebugInformationRow(index uint32) (MethodDebugInformationRow, error) {
	t := s.Table(TableMethodDebugInformation)
	var row MethodDebugInformationRow
	var err error
	if row.Document, err = t.Cell(index, 0); err != nil {
		return row, err
	}
	row.SequencePoints, err = t.Cell(index, 1)
	return row, err
}

// LocalScopeRow is a decoded LocalScope table row.
type LocalScopeRow struct {
	Method       uint32
	ImportScope  uint32
	VariableList uint32
	ConstantList uint32
	StartOffset  uint32
	Length       uint32
}

// LocalScopeRow decodes the given 1-based row.
func (s *TableStream) LocalScopeRow(index uint32) (LocalScopeRow, error) {
	t := s.Table(TableLocalScope)
	var row LocalScopeRow
	var err error
	if row.Method, err = t.Cell(index, 0); err != nil {
		return row, err
	}
	if row.ImportScope, err = t.Cell(index, 1); err != nil {
		return row, err
	}
	if row.VariableList, err = t.Cell(index, 2); err != nil {
		return row, err
	}
	if row.ConstantList, err = t.Cell(index, 3); err != nil {
		return row, err
	}
	if row.StartOffset, err = t.Cell(index, 4); err != nil {
		return row, err
	}
	row.Length, err = t.Cell(index, 5)
	return row, err
}

// LocalVariableRow is a decoded LocalVariable table row.
type LocalVariableRow struct {
	Attributes uint16
	Index      uint16
	Name       uint32
}

// LocalVariableRow decodes the given 1-based row.
func (s *TableStream) LocalVariableRow(index uint32) (LocalVariableRow, error) {
	t := s.Table(TableLocalVariable)
	attrs, err := t.Cell(index, 0)
	if err != nil {
		return LocalVariableRow{}, err
	}
	slot, err := t.Cell(index, 1)
	if err != nil {
		return LocalVariableRow{}, err
	}
	name, err := t.Cell(index, 2)
	if err != nil {
		return LocalVariableRow{}, err
	}
	return LocalVariableRow{Attributes: uint16(attrs), Index: uint16(slot), Name: name}, nil
}

// LocalConstantRow is a decoded LocalConstant table row.
type LocalConstantRow struct {
	Name      uint32
	Signature uint32
}

// LocalConstantRow decodes the given 1-based row.
func (s *TableStream) LocalConstantRow(index uint32) (LocalConstantRow, error) {
	t := s.Table(TableLocalConstant)
	name, err := t.Cell(index, 0)
	if err != nil {
		return LocalConstantRow{}, err
	}
	sig, err := t.Cell(index, 1)
	if err != nil {
		return LocalConstantRow{}, err
	}
	return LocalConstantRow{Name: name, Signature: sig}, nil
}

// ImportScopeRow is a decoded ImportScope table row.
type ImportScopeRow struct {
	Parent  uint32
	Imports uint32
}

// ImportScopeRow decodes the given 1-based row.
func (s *TableStream) ImportScopeRow(index uint32) (ImportScopeRow, error) {
	t := s.Table(TableImportScope)
	parent, err := t.Cell(index, 0)
	if err != nil {
		return ImportScopeRow{}, err
	}
	imports, err := t.Cell(index, 1)
	if err != nil {
		return ImportScopeRow{}, err
	}
	return ImportScopeRow{Parent: parent, Imports: imports}, nil
}

// CustomDebugInformationRow is a decoded CustomDebugInformation table row.
type CustomDebugInformationRow struct {
	// Parent is a HasCustomDebugInformation coded index.
	Parent uint32
	// Kind is a 1-based GUID index identifying the payload format.
	Kind uint32
	// Value is a blob offset.
	Value uint32
}

// CustomDebugInformationRow decodes the given 1-based row.
func (s *TableStream) CustomDebugInformationRow(index uint32) (CustomDebugInformationRow, error) {
	t := s.Table(TableCustomDebugInformation)
	var row CustomDebugInformationRow
	var err error
	if row.Parent, err = t.Cell(index, 0); err != nil {
		return row, err
	}
	if row.Kind, err = t.Cell(index, 1); err != nil {
		return row, err
	}
	row.Value, err = t.Cell(index, 2)
	return row, err
}
