package wasm

import (
	"errors"
	"fmt"
	"io"

	werrors "github.com/wippyai/wasmvm/errors"
	"github.com/wippyai/wasmvm/wasm/internal/binary"
)

// Parsing errors returned by ParseModule, wrapped in a decode-phase *errors.Error.
var (
	ErrInvalidMagic   = errors.New("magic header not detected")
	ErrInvalidVersion = errors.New("unknown binary version")
	ErrSectionSize    = errors.New("section size mismatch")
	ErrSectionOrder   = errors.New("unexpected content after last section")
	ErrSectionID      = errors.New("malformed section id")
	ErrCodeCount      = errors.New("function and code section have inconsistent lengths")
	ErrTooManyLocals  = errors.New("too many locals")
	ErrConstExpr      = errors.New("constant expression required")
)

// ParseModule parses a WebAssembly 1.0 binary module. It performs only
// structural decoding; use the validator before executing anything.
func ParseModule(data []byte) (*Module, error) {
	m, err := parseModule(data)
	if err != nil {
		return nil, decodeError(err)
	}
	return m, nil
}

func parseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil || magic != Magic {
		return nil, &binary.ParseError{Section: "header", Err: ErrInvalidMagic}
	}
	version, err := r.ReadU32LE()
	if err != nil || version != Version {
		return nil, &binary.ParseError{Section: "header", Position: 4, Err: ErrInvalidVersion}
	}

	m := &Module{}
	var lastSection byte

	for r.Len() > 0 {
		start := r.Position()
		sectionID, _ := r.ReadByte()
		if sectionID > SectionData {
			return nil, &binary.ParseError{Position: start, Err: ErrSectionID}
		}

		// Custom sections can appear anywhere; the rest must be strictly increasing.
		if sectionID != SectionCustom {
			if sectionID <= lastSection {
				return nil, &binary.ParseError{Position: start, Section: sectionName(sectionID), Err: ErrSectionOrder}
			}
			lastSection = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		sectionStart := r.Position()
		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError(sectionName(sectionID), fmt.Errorf("section length out of bounds: %w", err))
		}

		sr := binary.NewReaderAt(sectionData, sectionStart)
		if err := parseSection(sectionID, sr, m); err != nil {
			return nil, sr.WrapError(sectionName(sectionID), err)
		}
		if sr.Len() != 0 {
			return nil, sr.WrapError(sectionName(sectionID), ErrSectionSize)
		}
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, r.WrapError("code", ErrCodeCount)
	}

	return m, nil
}

func parseSection(id byte, r *binary.Reader, m *Module) error {
	switch id {
	case SectionCustom:
		return parseCustomSection(r, m)
	case SectionType:
		return parseTypeSection(r, m)
	case SectionImport:
		return parseImportSection(r, m)
	case SectionFunction:
		return parseFunctionSection(r, m)
	case SectionTable:
		return parseTableSection(r, m)
	case SectionMemory:
		return parseMemorySection(r, m)
	case SectionGlobal:
		return parseGlobalSection(r, m)
	case SectionExport:
		return parseExportSection(r, m)
	case SectionStart:
		return parseStartSection(r, m)
	case SectionElement:
		return parseElementSection(r, m)
	case SectionCode:
		return parseCodeSection(r, m)
	case SectionData:
		return parseDataSection(r, m)
	}
	return ErrSectionID
}

func sectionName(id byte) string {
	switch id {
	case SectionCustom:
		return "custom"
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionTable:
		return "table"
	case SectionMemory:
		return "memory"
	case SectionGlobal:
		return "global"
	case SectionExport:
		return "export"
	case SectionStart:
		return "start"
	case SectionElement:
		return "element"
	case SectionCode:
		return "code"
	case SectionData:
		return "data"
	default:
		return fmt.Sprintf("section 0x%02x", id)
	}
}

// decodeError converts a positioned parse failure into the structured error type.
func decodeError(err error) error {
	var we *werrors.Error
	if errors.As(err, &we) {
		return we
	}
	var pe *binary.ParseError
	if !errors.As(err, &pe) {
		return werrors.Wrap(werrors.PhaseDecode, werrors.KindMalformed, err, "decode module")
	}
	kind := werrors.KindMalformed
	switch {
	case errors.Is(pe.Err, binary.ErrInvalidUTF8):
		kind = werrors.KindInvalidUTF8
	case errors.Is(pe.Err, binary.ErrOverflow), errors.Is(pe.Err, binary.ErrTooLarge):
		kind = werrors.KindOverflow
	case errors.Is(pe.Err, ErrConstExpr):
		return werrors.New(werrors.PhaseValidate, werrors.KindInvalidData).
			Path(pe.Section).At(pe.Position).Detail(pe.Err.Error()).Build()
	}
	detail := pe.Err.Error()
	if pe.Err == io.EOF || pe.Err == io.ErrUnexpectedEOF {
		detail = "unexpected end"
	}
	b := werrors.New(werrors.PhaseDecode, kind).At(pe.Position).Detail(detail).Cause(pe.Err)
	if pe.Section != "" {
		b.Path(pe.Section)
	}
	return b.Build()
}

// readCount reads a vector length and rejects lengths that cannot fit in
// the remaining bytes, so hostile inputs cannot force huge allocations.
func readCount(r *binary.Reader) (int, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Len() {
		return 0, fmt.Errorf("length out of bounds: %d entries, %d bytes left", n, r.Len())
	}
	return int(n), nil
}

func parseCustomSection(r *binary.Reader, m *Module) error {
	name, err := r.ReadName()
	if err != nil {
		return err
	}
	m.CustomSections = append(m.CustomSections, CustomSection{
		Name: name,
		Data: r.ReadRemaining(),
	})
	return nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Types = make([]FuncType, 0, count)
	for i := 0; i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("malformed function type 0x%02x", form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	types := make([]ValType, count)
	for i := range types {
		if types[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return types, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	if !vt.IsValid() {
		return 0, fmt.Errorf("malformed value type 0x%02x", b)
	}
	return vt, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Imports = make([]Import, 0, count)
	for i := 0; i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Desc.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Desc.Kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			tt, err := readTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &tt
		case KindMemory:
			lim, err := readLimits(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &MemoryType{Limits: lim}
		case KindGlobal:
			gt, err := readGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("malformed import kind 0x%02x", imp.Desc.Kind)
		}
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, count)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		tt, err := readTableType(r)
		if err != nil {
			return err
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		lim, err := readLimits(r)
		if err != nil {
			return err
		}
		m.Memories = append(m.Memories, MemoryType{Limits: lim})
	}
	return nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		gt, err := readGlobalType(r)
		if err != nil {
			return err
		}
		init, err := readConstExpr(r)
		if err != nil {
			return err
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Exports = make([]Export, 0, count)
	for i := 0; i < count; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if exp.Kind > KindGlobal {
			return fmt.Errorf("malformed export kind 0x%02x", exp.Kind)
		}
		if exp.Idx, err = r.ReadU32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		var elem Element
		if elem.TableIdx, err = r.ReadU32(); err != nil {
			return err
		}
		if elem.Offset, err = readConstExpr(r); err != nil {
			return err
		}
		n, err := readCount(r)
		if err != nil {
			return err
		}
		elem.FuncIdxs = make([]uint32, n)
		for j := range elem.FuncIdxs {
			if elem.FuncIdxs[j], err = r.ReadU32(); err != nil {
				return err
			}
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	m.Code = make([]FuncBody, 0, count)
	for i := 0; i < count; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyStart := r.Position()
		data, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("function body %d: %w", i, err)
		}
		br := binary.NewReaderAt(data, bodyStart)

		groups, err := readCount(br)
		if err != nil {
			return br.WrapError("code", err)
		}
		var body FuncBody
		var total uint64
		for j := 0; j < groups; j++ {
			n, err := br.ReadU32()
			if err != nil {
				return br.WrapError("code", err)
			}
			total += uint64(n)
			if total > MaxLocals {
				return br.WrapError("code", ErrTooManyLocals)
			}
			vt, err := readValType(br)
			if err != nil {
				return br.WrapError("code", err)
			}
			body.Locals = append(body.Locals, LocalEntry{Count: n, ValType: vt})
		}
		body.Offset = br.Position()
		body.Code = br.ReadRemaining()
		if len(body.Code) == 0 || body.Code[len(body.Code)-1] != OpEnd {
			return &binary.ParseError{Position: body.Offset + len(body.Code), Section: "code", Err: errors.New("END opcode expected")}
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := readCount(r)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		var seg DataSegment
		if seg.MemIdx, err = r.ReadU32(); err != nil {
			return err
		}
		if seg.Offset, err = readConstExpr(r); err != nil {
			return err
		}
		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.ReadBytes(int(n)); err != nil {
			return fmt.Errorf("data segment %d: %w", i, err)
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}

func readLimits(r *binary.Reader) (Limits, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return Limits{}, err
	}
	var lim Limits
	switch flag {
	case 0x00:
		lim.Min, err = r.ReadU32()
	case 0x01:
		if lim.Min, err = r.ReadU32(); err != nil {
			return Limits{}, err
		}
		var max uint32
		max, err = r.ReadU32()
		lim.Max = &max
	default:
		return Limits{}, fmt.Errorf("malformed limits flags 0x%02x", flag)
	}
	return lim, err
}

func readTableType(r *binary.Reader) (TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return TableType{}, err
	}
	if elem != ElemFuncRef {
		return TableType{}, fmt.Errorf("malformed reference type 0x%02x", elem)
	}
	lim, err := readLimits(r)
	if err != nil {
		return TableType{}, err
	}
	return TableType{ElemType: elem, Limits: lim}, nil
}

func readGlobalType(r *binary.Reader) (GlobalType, error) {
	vt, err := readValType(r)
	if err != nil {
		return GlobalType{}, err
	}
	mut, err := r.ReadByte()
	if err != nil {
		return GlobalType{}, err
	}
	if mut > 1 {
		return GlobalType{}, fmt.Errorf("malformed mutability 0x%02x", mut)
	}
	return GlobalType{ValType: vt, Mutable: mut == 1}, nil
}

func readConstExpr(r *binary.Reader) (ConstExpr, error) {
	op, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, err
	}
	expr := ConstExpr{Opcode: op}
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.Value = uint64(uint32(v))
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.Value = uint64(v)
	case OpF32Const:
		v, err := r.ReadU32LE()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.Value = uint64(v)
	case OpF64Const:
		if expr.Value, err = r.ReadU64LE(); err != nil {
			return ConstExpr{}, err
		}
	case OpGlobalGet:
		v, err := r.ReadU32()
		if err != nil {
			return ConstExpr{}, err
		}
		expr.Value = uint64(v)
	default:
		return ConstExpr{}, &binary.ParseError{Position: r.Position() - 1, Err: ErrConstExpr}
	}
	end, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != OpEnd {
		return ConstExpr{}, &binary.ParseError{Position: r.Position() - 1, Err: ErrConstExpr}
	}
	return expr, nil
}
