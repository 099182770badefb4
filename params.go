package odbc

import (
	"strconv"
	"strings"
)

// ParameterDirection tells whether a parameter sends a value, receives one,
// or both.
type ParameterDirection int

const (
	ParamInput ParameterDirection = iota
	ParamOutput
	ParamInputOutput
)

func (d ParameterDirection) ioType() SQLSMALLINT {
	switch d {
	case ParamOutput:
		return SQL_PARAM_OUTPUT
	case ParamInputOutput:
		return SQL_PARAM_INPUT_OUTPUT
	default:
		return SQL_PARAM_INPUT
	}
}

// defaultOutputSize is the buffer size given to an output parameter whose
// Size is unset and whose value does not imply one.
const defaultOutputSize = 4000

// Parameter is one positional statement parameter.
//
// Value is read when the owning command executes, so it may be changed
// between executions of a prepared command. For output and input-output
// parameters Value is replaced with what the driver wrote back.
type Parameter struct {
	Name      string
	Value     any
	Direction ParameterDirection
	// Size is the buffer size in bytes reserved for a variable-length value
	// the driver writes back. Ignored for input parameters.
	Size int

	bound     binding
	buf       []byte
	indicator SQLLEN
}

// NewParameter returns an input parameter.
func NewParameter(name string, value any) *Parameter {
	return &Parameter{Name: name, Value: value}
}

// Bind describes the parameter to the driver at ordinal and allocates the
// buffer the driver reads at execute time. The buffer is sized from the
// current Value (and Size for output directions); CopyValue fills it.
func (p *Parameter) Bind(cmd *Command, stmt SQLHSTMT, ordinal SQLUSMALLINT) error {
	enc, err := p.encode()
	if err != nil {
		return err
	}

	size := max(len(enc.data), 1)
	if p.Direction != ParamInput && fixedSize(enc.cType) == 0 {
		size = max(len(enc.data), p.Size)
		if size == 0 {
			size = defaultOutputSize
		}
		if enc.cType == SQL_C_CHAR {
			size++ // terminator written by the driver
		}
		if SQLULEN(size) > enc.colSize {
			enc.colSize = SQLULEN(size)
		}
	}

	p.bound = enc.binding
	p.buf = make([]byte, size)
	p.indicator = 0

	bridge := cmd.conn.bridge
	ret := bridge.BindParameter(stmt, ordinal, p.Direction.ioType(),
		enc.cType, enc.sqlType, enc.colSize, enc.decDigits, p.buf, &p.indicator)
	if !IsSuccess(ret) {
		return &CallError{
			Kind:       ErrBind,
			Call:       "SQLBindParameter",
			HandleType: SQL_HANDLE_STMT,
			Handle:     SQLHANDLE(stmt),
			Return:     ret,
			Diag:       cmd.conn.CreateDiagnosticError(SQL_HANDLE_STMT, SQLHANDLE(stmt)),
		}
	}
	return nil
}

// CopyValue writes the current Value into the buffer allocated by Bind and
// sets the length indicator.
func (p *Parameter) CopyValue() error {
	if p.Direction == ParamOutput {
		p.indicator = SQL_NULL_DATA
		return nil
	}

	enc, err := p.encode()
	if err != nil {
		return err
	}
	if enc.null {
		p.indicator = SQL_NULL_DATA
		return nil
	}
	if enc.cType != p.bound.cType {
		return &ParameterError{Name: p.Name, Message: "value type changed since bind"}
	}
	if len(enc.data) > len(p.buf) {
		return &ParameterError{Name: p.Name, Message: "value of " + strconv.Itoa(len(enc.data)) +
			" bytes exceeds bound buffer of " + strconv.Itoa(len(p.buf))}
	}
	copy(p.buf, enc.data)
	p.indicator = SQLLEN(len(enc.data))
	return nil
}

// readOutput replaces Value with what the driver wrote into the buffer.
func (p *Parameter) readOutput() error {
	if p.Direction == ParamInput {
		return nil
	}
	if p.indicator == SQL_NULL_DATA {
		p.Value = nil
		return nil
	}

	n := len(p.buf)
	if fixedSize(p.bound.cType) == 0 {
		if p.bound.cType == SQL_C_CHAR {
			n--
		}
		if p.indicator >= 0 && int(p.indicator) < n {
			n = int(p.indicator)
		}
	}
	v, err := decodeValue(p.bound.cType, p.buf[:n])
	if err != nil {
		return &ParameterError{Name: p.Name, Message: err.Error()}
	}
	p.Value = v
	return nil
}

func (p *Parameter) encode() (encoded, error) {
	if p.Value == nil && p.Direction != ParamInput {
		return encoded{binding: binding{SQL_C_CHAR, SQL_VARCHAR, 0, 0}, null: true}, nil
	}
	enc, err := encodeValue(p.Value)
	if err != nil {
		return encoded{}, &ParameterError{Name: p.Name, Message: err.Error()}
	}
	return enc, nil
}

// Clone returns an unbound copy of p. Byte slice values are copied.
func (p *Parameter) Clone() *Parameter {
	value := p.Value
	if b, ok := value.([]byte); ok && b != nil {
		value = append([]byte(nil), b...)
	}
	return &Parameter{
		Name:      p.Name,
		Value:     value,
		Direction: p.Direction,
		Size:      p.Size,
	}
}

// Parameters is the ordered parameter list of a command.
type Parameters struct {
	items []*Parameter
}

// Add appends an input parameter and returns it.
func (ps *Parameters) Add(name string, value any) *Parameter {
	return ps.AddParameter(NewParameter(name, value))
}

func (ps *Parameters) AddParameter(p *Parameter) *Parameter {
	ps.items = append(ps.items, p)
	return p
}

func (ps *Parameters) Len() int {
	return len(ps.items)
}

// At returns the parameter at zero-based position i.
func (ps *Parameters) At(i int) *Parameter {
	return ps.items[i]
}

// IndexOf returns the position of the first parameter named name, compared
// case-insensitively, or -1.
func (ps *Parameters) IndexOf(name string) int {
	for i, p := range ps.items {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

func (ps *Parameters) Lookup(name string) (*Parameter, bool) {
	if i := ps.IndexOf(name); i >= 0 {
		return ps.items[i], true
	}
	return nil, false
}

// Remove deletes p from the list and reports whether it was present.
func (ps *Parameters) Remove(p *Parameter) bool {
	for i, q := range ps.items {
		if q == p {
			ps.items = append(ps.items[:i], ps.items[i+1:]...)
			return true
		}
	}
	return false
}

func (ps *Parameters) Clear() {
	ps.items = nil
}

// All returns the parameters in bind order.
func (ps *Parameters) All() []*Parameter {
	out := make([]*Parameter, len(ps.items))
	copy(out, ps.items)
	return out
}

// NamedParams holds parsed named parameter information
type NamedParams struct {
	// Query is the converted query with positional ? placeholders
	Query string

	// Names contains the parameter names in order of their first appearance
	Names []string

	// Positions maps parameter names to their positions (1-based, matching ODBC binding)
	// A single named parameter may appear multiple times in the query
	Positions map[string][]int
}

// ParseNamedParams parses a query with named parameters and converts to positional placeholders.
// Supports the following named parameter styles:
//   - :name  (Oracle/PostgreSQL style)
//   - @name  (SQL Server style)
//   - $name  (PostgreSQL style - not $1 which is positional)
//
// Returns nil if no named parameters are found (query uses positional ? only).
func ParseNamedParams(query string) *NamedParams {
	if !hasNamedMarker(query) {
		return nil
	}

	result := &NamedParams{
		Positions: make(map[string][]int),
	}

	var output []byte
	position := 0
	i := 0

	for i < len(query) {
		c := query[i]

		// Literals, quoted identifiers and comments are copied untouched
		if end := skipNonCode(query, i); end > i {
			output = append(output, query[i:end]...)
			i = end
			continue
		}

		if isMarker(c) && i+1 < len(query) && isIdentStart(query[i+1]) {
			start := i + 1
			end := start
			for end < len(query) && isIdentChar(query[end]) {
				end++
			}

			name := query[start:end]
			position++
			if _, seen := result.Positions[name]; !seen {
				result.Names = append(result.Names, name)
			}
			result.Positions[name] = append(result.Positions[name], position)

			output = append(output, '?')
			i = end
			continue
		}

		output = append(output, c)
		i++
	}

	if len(result.Names) == 0 {
		return nil
	}

	result.Query = string(output)
	return result
}

// Bind maps named values onto positional ones in placeholder order.
// A name used twice in the query produces its value twice.
func (np *NamedParams) Bind(values map[string]any) ([]any, error) {
	total := 0
	for _, pos := range np.Positions {
		total += len(pos)
	}
	out := make([]any, total)
	for _, name := range np.Names {
		v, ok := values[name]
		if !ok {
			return nil, &ParameterError{Name: name, Message: "no value supplied"}
		}
		for _, pos := range np.Positions[name] {
			out[pos-1] = v
		}
	}
	return out, nil
}

func hasNamedMarker(query string) bool {
	for i := 0; i+1 < len(query); i++ {
		if isMarker(query[i]) && isIdentStart(query[i+1]) {
			return true
		}
	}
	return false
}

// skipNonCode returns the end of the quoted string or comment starting at i,
// or i itself when none starts there.
func skipNonCode(query string, i int) int {
	c := query[i]
	switch {
	case c == '\'' || c == '"':
		j := i + 1
		for j < len(query) {
			if query[j] == c {
				if j+1 < len(query) && query[j+1] == c {
					// Escaped quote
					j += 2
					continue
				}
				return j + 1
			}
			j++
		}
		return j
	case c == '-' && i+1 < len(query) && query[i+1] == '-':
		j := i
		for j < len(query) && query[j] != '\n' {
			j++
		}
		return j
	case c == '/' && i+1 < len(query) && query[i+1] == '*':
		j := i + 2
		for j+1 < len(query) {
			if query[j] == '*' && query[j+1] == '/' {
				return j + 2
			}
			j++
		}
		return len(query)
	}
	return i
}

func isMarker(c byte) bool {
	return c == ':' || c == '@' || c == '$'
}

// isIdentStart returns true if c is a valid identifier start character
func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

// isIdentChar returns true if c is a valid identifier character
func isIdentChar(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
