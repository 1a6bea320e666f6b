package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Lexer for the textual IR. Identifiers may carry dots so opcode names
// like icmp.eq and value names like v.1 are single tokens.
var irLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		{Name: "Comment", Pattern: `;[^\n]*`, Action: nil},
		{Name: "String", Pattern: `"(\\.|[^"])*"`, Action: nil},
		{Name: "Float", Pattern: `-?[0-9]+\.[0-9]+(e[+-]?[0-9]+)?`, Action: nil},
		{Name: "Int", Pattern: `-?(0x[0-9a-fA-F]+|[0-9]+)`, Action: nil},
		{Name: "Ident", Pattern: `[a-zA-Z_.][a-zA-Z0-9_.]*`, Action: nil},
		{Name: "Arrow", Pattern: `->`, Action: nil},
		{Name: "Punct", Pattern: `[%@:,=(){}\[\]]|\.\.\.`, Action: nil},
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`, Action: nil},
	},
})

// File is a whole textual unit.
type File struct {
	Name  string  `"unit" @String`
	Decls []*Decl `@@*`
}

type Decl struct {
	Global *GlobalDecl `  @@`
	Func   *FuncDecl   `| @@`
}

type GlobalDecl struct {
	Name string   `"global" "@" @Ident`
	Type *TypeRef `":" @@`
	Init *Initial `( "=" @@ )?`
}

type Initial struct {
	Str   *string  `  @String`
	Float *float64 `| @Float`
	Int   *int64   `| @Int`
}

type FuncDecl struct {
	Name   string       `"func" "@" @Ident`
	Params []*ParamDecl `"(" ( @@ ( "," @@ )* )?`
	VarArg bool         `( "," @"..." )? ")"`
	Ret    *TypeRef     `Arrow @@`
	Body   []*BlockDecl `( "{" @@* "}" )?`
}

type ParamDecl struct {
	Type *TypeRef `@@`
	Name string   `"%" @Ident`
}

type TypeRef struct {
	Void    bool       `  @"void"`
	Int     *string    `| @("i1" | "i8" | "i16" | "i32" | "i64")`
	Float   *string    `| @("f32" | "f64")`
	Pointer *TypeRef   `| "ptr" @@`
	Array   *ArrayRef  `| @@`
	Struct  *StructRef `| @@`
}

type ArrayRef struct {
	Element *TypeRef `"[" @@`
	Count   int      `"x" @Int "]"`
}

type StructRef struct {
	Fields []*TypeRef `"{" @@ ( "," @@ )* "}"`
}

type BlockDecl struct {
	Label  string   `@Ident ":"`
	Instrs []*Instr `@@*`
}

type Instr struct {
	Store  *StoreInstr  `  @@`
	Ret    *RetInstr    `| @@`
	Jump   *JumpInstr   `| @@`
	Br     *BrInstr     `| @@`
	Switch *SwitchInstr `| @@`
	Assign *AssignInstr `| @@`
	Call   *CallRhs     `| @@` // a call whose result is unused
}

type StoreInstr struct {
	Ptr   *Operand `"store" @@`
	Value *Operand `"," @@`
}

type RetInstr struct {
	Keyword bool     `@"ret"`
	Value   *Operand `( @@ )?`
}

type JumpInstr struct {
	Target string `"jump" "%" @Ident`
}

type BrInstr struct {
	Cond string `"br" "%" @Ident`
	Then string `"," "%" @Ident`
	Else string `"," "%" @Ident`
}

type SwitchInstr struct {
	Value   *Operand      `"switch" @@`
	Default string        `"," "%" @Ident`
	Cases   []*SwitchCase `"[" ( @@ ( "," @@ )* )? "]"`
}

type SwitchCase struct {
	Value *Operand `@@`
	Block string   `Arrow "%" @Ident`
}

type AssignInstr struct {
	Dst string `"%" @Ident "="`
	Rhs *Rhs   `@@`
}

type Rhs struct {
	Alloc   *AllocRhs   `  @@`
	Load    *LoadRhs    `| @@`
	Phi     *PhiRhs     `| @@`
	Call    *CallRhs    `| @@`
	GEP     *GEPRhs     `| @@`
	Extract *ExtractRhs `| @@`
	Cast    *CastRhs    `| @@`
	Bin     *BinRhs     `| @@`
}

type AllocRhs struct {
	Type *TypeRef `"allocate" @@`
}

type LoadRhs struct {
	Ptr *Operand `"load" @@`
}

type PhiRhs struct {
	Type     *TypeRef   `"phi" @@`
	Incoming []*PhiEdge `( @@ ( "," @@ )* )?`
}

type PhiEdge struct {
	Value *Operand `"[" @@`
	Block string   `"," "%" @Ident "]"`
}

type CallRhs struct {
	Type   *TypeRef   `"call" @@`
	Callee *Operand   `@@`
	Args   []*Operand `"(" ( @@ ( "," @@ )* )? ")"`
}

type GEPRhs struct {
	Base    *Operand   `"gep" @@`
	Indices []*Operand `( "," @@ )+`
}

type ExtractRhs struct {
	Aggregate *Operand `"extractvalue" @@`
	Index     *Operand `"," @@`
}

type CastRhs struct {
	Op    string   `@("zext" | "sext" | "trunc" | "fptrunc" | "fpext" | "fptosi" | "fptoui" | "sitofp" | "uitofp" | "bitcast" | "ptrtoint" | "inttoptr")`
	Value *Operand `@@`
	To    *TypeRef `"to" @@`
}

type BinRhs struct {
	Op  string   `@("add" | "sub" | "imul" | "umul" | "fmul" | "idiv" | "udiv" | "fdiv" | "irem" | "urem" | "icmp.eq" | "icmp.ne" | "icmp.gt" | "icmp.ge" | "icmp.lt" | "icmp.le" | "ucmp.gt" | "ucmp.ge" | "ucmp.lt" | "ucmp.le" | "fcmp.eq" | "fcmp.ne" | "fcmp.gt" | "fcmp.ge" | "fcmp.lt" | "fcmp.le" | "shl" | "lshr" | "ashr" | "and" | "or" | "xor")`
	LHS *Operand `@@`
	RHS *Operand `"," @@`
}

// Operand is a value reference or a typed literal.
type Operand struct {
	Ref    *string     `  "%" @Ident`
	Global *string     `| "@" @Ident`
	Null   bool        `| @"null"`
	Undef  *TypeRef    `| "undef" @@`
	Lit    *TypedValue `| @@`
}

type TypedValue struct {
	Type  *TypeRef `@@`
	Float *float64 `( @Float`
	Int   *int64   `| @Int )`
}
