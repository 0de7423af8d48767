package schema

import (
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	"github.com/FocuswithJustin/sqlforensic/core/errors"
)

// createGrammar is the participle grammar for the CREATE TABLE and CREATE
// INDEX statements stored in sqlite_master. Column definitions and
// constraints are captured as balanced token lists and interpreted in Go.
// Examples:
//
//	CREATE TABLE users(id INTEGER PRIMARY KEY, name TEXT NOT NULL)
//	CREATE TABLE "t"(a, b BLOB, PRIMARY KEY(a, b)) WITHOUT ROWID
//	CREATE UNIQUE INDEX idx ON users(name COLLATE NOCASE)
//
//nolint:govet // participle grammar tags are not standard struct tags
type createGrammar struct {
	Table *createTable `"CREATE" ( @@`
	Index *createIndex `         | @@ ) ";"?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type createTable struct {
	Temp        bool        `@( "TEMP" | "TEMPORARY" )?`
	Virtual     bool        `@"VIRTUAL"?`
	IfNotExists bool        `"TABLE" @( "IF" "NOT" "EXISTS" )?`
	Name        *objectName `@@`
	Module      string      `( "USING" @Ident )?`
	Elements    []*element  `( "(" @@ ( "," @@ )* ")" )?`
	AsSelect    []*term     `( "AS" @@+ )?`
	Options     []string    `( @Ident ","? )*`
}

//nolint:govet // participle grammar tags are not standard struct tags
type createIndex struct {
	Unique      bool        `@"UNIQUE"? "INDEX"`
	IfNotExists bool        `@( "IF" "NOT" "EXISTS" )?`
	Name        *objectName `@@`
	Table       *objectName `"ON" @@`
	Columns     []*element  `"(" @@ ( "," @@ )* ")"`
	Where       []*term     `( "WHERE" @@+ )?`
}

//nolint:govet // participle grammar tags are not standard struct tags
type objectName struct {
	Parts []string `@( Ident | QuotedIdent | String ) ( "." @( Ident | QuotedIdent | String ) )*`
}

// element is a column definition, a table constraint or an indexed column.
//
//nolint:govet // participle grammar tags are not standard struct tags
type element struct {
	Terms []*term `@@+`
}

// term is a single token or a parenthesized group. Commas inside a group
// separate its terms and are not captured.
//
//nolint:govet // participle grammar tags are not standard struct tags
type term struct {
	Open  bool    `(   @"("`
	Group []*term `    ( @@ | "," )* ")"`
	Word  string  `  | @( Ident | QuotedIdent | String | Number | Operator | "." ) )`
}

// createLexer tokenizes SQLite DDL.
var createLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|/\*(?s:.*?)\*/`},
	{Name: "String", Pattern: `'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: "\"(?:[^\"]|\"\")*\"|`(?:[^`]|``)*`|\\[[^\\]]*\\]"},
	{Name: "Number", Pattern: `0[xX][0-9a-fA-F]+|[0-9]+(?:\.[0-9]*)?(?:[eE][-+]?[0-9]+)?|\.[0-9]+`},
	{Name: "Ident", Pattern: `[A-Za-z_\x80-\x{10FFFF}][A-Za-z0-9_$\x80-\x{10FFFF}]*`},
	{Name: "Operator", Pattern: `\|\||<<|>>|<=|>=|==|!=|<>|[-+*/%<>=~&|!?:@#]`},
	{Name: "Punct", Pattern: `[(),;.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

// createParser is the participle parser for CREATE statements.
var createParser = participle.MustBuild[createGrammar](
	participle.Lexer(createLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.CaseInsensitive("Ident"),
	participle.UseLookahead(2),
)

// Keywords that end a column's type name and start its constraints.
var constraintKeywords = map[string]bool{
	"CONSTRAINT": true, "PRIMARY": true, "NOT": true, "NULL": true,
	"UNIQUE": true, "CHECK": true, "DEFAULT": true, "COLLATE": true,
	"REFERENCES": true, "GENERATED": true, "AS": true,
}

// Keywords that start a table constraint instead of a column definition.
var tableConstraintKeywords = map[string]bool{
	"CONSTRAINT": true, "PRIMARY": true, "UNIQUE": true, "CHECK": true, "FOREIGN": true,
}

// ParseCreate parses a CREATE TABLE or CREATE INDEX statement into a
// descriptor. The root page is left zero.
func ParseCreate(sql string) (*Descriptor, error) {
	sql = strings.TrimSpace(sql)
	if sql == "" {
		return nil, errors.NewParse("sql", sql, "empty statement")
	}

	parsed, err := createParser.ParseString("", sql)
	if err != nil {
		perr := errors.NewParse("sql", sql, "invalid CREATE statement")
		perr.Err = err
		return nil, perr
	}

	if parsed.Index != nil {
		return buildIndex(parsed.Index), nil
	}
	return buildTable(parsed.Table, sql)
}

func buildTable(ct *createTable, sql string) (*Descriptor, error) {
	d := &Descriptor{
		Kind:        KindTable,
		Name:        ct.Name.last(),
		SQL:         sql,
		Virtual:     ct.Virtual,
		RowIDColumn: -1,
	}
	for _, opt := range ct.Options {
		if strings.EqualFold(opt, "ROWID") {
			d.WithoutRowID = true
		}
	}
	if ct.Virtual {
		// Virtual tables keep their data in shadow tables.
		return d, nil
	}
	if len(ct.Elements) == 0 {
		return nil, errors.NewParse("sql", sql, "table has no column definitions")
	}

	for _, el := range ct.Elements {
		if el.isTableConstraint() {
			d.PrimaryKey = append(d.PrimaryKey, el.primaryKeyColumns()...)
			continue
		}
		col, pk := el.column()
		if pk {
			d.PrimaryKey = append(d.PrimaryKey, col.Name)
		}
		d.Columns = append(d.Columns, col)
	}

	for i := range d.Columns {
		for _, pk := range d.PrimaryKey {
			if strings.EqualFold(d.Columns[i].Name, pk) {
				d.Columns[i].PrimaryKey = true
			}
		}
	}

	// A single INTEGER PRIMARY KEY column aliases the rowid, except when
	// declared DESC in the column definition.
	if len(d.PrimaryKey) == 1 && !d.WithoutRowID {
		for i, c := range d.Columns {
			if c.PrimaryKey && !c.descKey && strings.EqualFold(strings.TrimSpace(c.Type), "INTEGER") {
				d.RowIDColumn = i
			}
		}
	}
	return d, nil
}

func buildIndex(ci *createIndex) *Descriptor {
	d := &Descriptor{
		Kind:        KindIndex,
		Name:        ci.Name.last(),
		Table:       ci.Table.last(),
		RowIDColumn: -1,
	}
	for _, el := range ci.Columns {
		name := "expr"
		if len(el.Terms) > 0 && el.Terms[0].Word != "" {
			name = unquote(el.Terms[0].Word)
		}
		d.Columns = append(d.Columns, Column{Name: name})
	}
	return d
}

func (n *objectName) last() string {
	if n == nil || len(n.Parts) == 0 {
		return ""
	}
	return unquote(n.Parts[len(n.Parts)-1])
}

func (e *element) isTableConstraint() bool {
	if len(e.Terms) == 0 || e.Terms[0].Word == "" {
		return false
	}
	return tableConstraintKeywords[strings.ToUpper(e.Terms[0].Word)]
}

// primaryKeyColumns returns the columns of a PRIMARY KEY table constraint.
func (e *element) primaryKeyColumns() []string {
	for i := 0; i+2 < len(e.Terms); i++ {
		if strings.EqualFold(e.Terms[i].Word, "PRIMARY") && strings.EqualFold(e.Terms[i+1].Word, "KEY") && e.Terms[i+2].Open {
			var cols []string
			for _, t := range e.Terms[i+2].Group {
				if t.Word == "" || isOrderKeyword(t.Word) {
					continue
				}
				cols = append(cols, unquote(t.Word))
			}
			return cols
		}
	}
	return nil
}

// column interprets a column definition: name, type words up to the first
// constraint keyword, then NOT NULL and PRIMARY KEY constraints.
func (e *element) column() (Column, bool) {
	col := Column{Name: unquote(e.Terms[0].Word)}
	var typeWords []string
	i := 1
	for ; i < len(e.Terms); i++ {
		t := e.Terms[i]
		if t.Open {
			continue // VARCHAR(20), DECIMAL(10, 2)
		}
		if constraintKeywords[strings.ToUpper(t.Word)] {
			break
		}
		typeWords = append(typeWords, t.Word)
	}
	col.Type = strings.Join(typeWords, " ")
	col.Affinity = AffinityFromType(col.Type)

	pk := false
	for ; i < len(e.Terms); i++ {
		w := strings.ToUpper(e.Terms[i].Word)
		next := ""
		if i+1 < len(e.Terms) {
			next = strings.ToUpper(e.Terms[i+1].Word)
		}
		switch {
		case w == "PRIMARY" && next == "KEY":
			pk = true
			if i+2 < len(e.Terms) && strings.EqualFold(e.Terms[i+2].Word, "DESC") {
				col.descKey = true
			}
			i++
		case w == "NOT" && next == "NULL":
			col.NotNull = true
			i++
		case w == "DEFAULT" || w == "COLLATE" || w == "REFERENCES":
			i++ // skip the operand so a default of NULL is not read as a constraint
		}
	}
	col.PrimaryKey = pk
	return col, pk
}

func isOrderKeyword(w string) bool {
	switch strings.ToUpper(w) {
	case "ASC", "DESC", "COLLATE", "NOCASE", "BINARY", "RTRIM":
		return true
	}
	return false
}

// unquote strips SQL identifier or string quoting.
func unquote(s string) string {
	if len(s) < 2 {
		return s
	}
	switch {
	case s[0] == '"' && s[len(s)-1] == '"':
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	case s[0] == '`' && s[len(s)-1] == '`':
		return strings.ReplaceAll(s[1:len(s)-1], "``", "`")
	case s[0] == '[' && s[len(s)-1] == ']':
		return s[1 : len(s)-1]
	case s[0] == '\'' && s[len(s)-1] == '\'':
		return strings.ReplaceAll(s[1:len(s)-1], "''", "'")
	}
	return s
}
