package reference

import (
	"github.com/ledgerweaver/ledgerweaver/internal/lexer"
)

// Symbol ids of the reference ledger grammar. SymbolError matches the id
// tree-sitter reserves for error nodes.
const (
	SymbolSourceFile uint16 = iota + 1
	SymbolTransaction
	SymbolOpen
	SymbolClose
	SymbolBalance
	SymbolPad
	SymbolNote
	SymbolDocument
	SymbolCommodity
	SymbolPrice
	SymbolEvent
	SymbolQuery
	SymbolCustom
	SymbolOption
	SymbolInclude
	SymbolPlugin
	SymbolPushtag
	SymbolPoptag
	SymbolPosting
	SymbolKeyValue
	SymbolComment
	SymbolDate
	SymbolAccount
	SymbolCurrency
	SymbolNumber
	SymbolString
	SymbolTag
	SymbolLink
	SymbolKey
	SymbolBool
	SymbolFlag
	SymbolKeyword
	SymbolIdentifier
	SymbolAmount
	SymbolBinaryExpr
	SymbolUnaryExpr
	SymbolParenExpr
	SymbolCostSpec
	SymbolPriceAnnotation
	SymbolLParen
	SymbolRParen
	SymbolPlus
	SymbolMinus
	SymbolStar
	SymbolSlash
	SymbolLCurl
	SymbolRCurl
	SymbolLDoubleCurl
	SymbolRDoubleCurl
	SymbolAt
	SymbolAtAt
	SymbolTilde
	SymbolComma

	SymbolError uint16 = 0xFFFF
)

var symbolNames = map[uint16]string{
	SymbolSourceFile:      "source_file",
	SymbolTransaction:     "transaction",
	SymbolOpen:            "open",
	SymbolClose:           "close",
	SymbolBalance:         "balance",
	SymbolPad:             "pad",
	SymbolNote:            "note",
	SymbolDocument:        "document",
	SymbolCommodity:       "commodity",
	SymbolPrice:           "price",
	SymbolEvent:           "event",
	SymbolQuery:           "query",
	SymbolCustom:          "custom",
	SymbolOption:          "option",
	SymbolInclude:         "include",
	SymbolPlugin:          "plugin",
	SymbolPushtag:         "pushtag",
	SymbolPoptag:          "poptag",
	SymbolPosting:         "posting",
	SymbolKeyValue:        "key_value",
	SymbolComment:         "comment",
	SymbolDate:            "date",
	SymbolAccount:         "account",
	SymbolCurrency:        "currency",
	SymbolNumber:          "number",
	SymbolString:          "string",
	SymbolTag:             "tag",
	SymbolLink:            "link",
	SymbolKey:             "key",
	SymbolBool:            "bool",
	SymbolFlag:            "flag",
	SymbolKeyword:         "keyword",
	SymbolIdentifier:      "identifier",
	SymbolAmount:          "amount",
	SymbolBinaryExpr:      "binary_num_expr",
	SymbolUnaryExpr:       "unary_num_expr",
	SymbolParenExpr:       "paren_num_expr",
	SymbolCostSpec:        "cost_spec",
	SymbolPriceAnnotation: "price_annotation",
	SymbolLParen:          "(",
	SymbolRParen:          ")",
	SymbolPlus:            "+",
	SymbolMinus:           "-",
	SymbolStar:            "*",
	SymbolSlash:           "/",
	SymbolLCurl:           "{",
	SymbolRCurl:           "}",
	SymbolLDoubleCurl:     "{{",
	SymbolRDoubleCurl:     "}}",
	SymbolAt:              "@",
	SymbolAtAt:            "@@",
	SymbolTilde:           "~",
	SymbolComma:           ",",
	SymbolError:           "ERROR",
}

// SymbolName returns the grammar name of a symbol id.
func SymbolName(sym uint16) string {
	return symbolNames[sym]
}

var tokenSymbols = map[lexer.TokenKind]uint16{
	lexer.TokenDate:        SymbolDate,
	lexer.TokenAccount:     SymbolAccount,
	lexer.TokenCurrency:    SymbolCurrency,
	lexer.TokenNumber:      SymbolNumber,
	lexer.TokenString:      SymbolString,
	lexer.TokenTag:         SymbolTag,
	lexer.TokenLink:        SymbolLink,
	lexer.TokenKey:         SymbolKey,
	lexer.TokenBool:        SymbolBool,
	lexer.TokenFlag:        SymbolFlag,
	lexer.TokenKwTxn:       SymbolFlag,
	lexer.TokenIdentifier:  SymbolIdentifier,
	lexer.TokenLParen:      SymbolLParen,
	lexer.TokenRParen:      SymbolRParen,
	lexer.TokenPlus:        SymbolPlus,
	lexer.TokenMinus:       SymbolMinus,
	lexer.TokenStar:        SymbolStar,
	lexer.TokenSlash:       SymbolSlash,
	lexer.TokenLCurl:       SymbolLCurl,
	lexer.TokenRCurl:       SymbolRCurl,
	lexer.TokenLDoubleCurl: SymbolLDoubleCurl,
	lexer.TokenRDoubleCurl: SymbolRDoubleCurl,
	lexer.TokenAt:          SymbolAt,
	lexer.TokenAtAt:        SymbolAtAt,
	lexer.TokenTilde:       SymbolTilde,
	lexer.TokenComma:       SymbolComma,
	lexer.TokenError:       SymbolError,
}

var directiveSymbols = map[lexer.TokenKind]uint16{
	lexer.TokenKwOpen:      SymbolOpen,
	lexer.TokenKwClose:     SymbolClose,
	lexer.TokenKwBalance:   SymbolBalance,
	lexer.TokenKwPad:       SymbolPad,
	lexer.TokenKwNote:      SymbolNote,
	lexer.TokenKwDocument:  SymbolDocument,
	lexer.TokenKwCommodity: SymbolCommodity,
	lexer.TokenKwPrice:     SymbolPrice,
	lexer.TokenKwEvent:     SymbolEvent,
	lexer.TokenKwQuery:     SymbolQuery,
	lexer.TokenKwCustom:    SymbolCustom,
	lexer.TokenKwOption:    SymbolOption,
	lexer.TokenKwInclude:   SymbolInclude,
	lexer.TokenKwPlugin:    SymbolPlugin,
	lexer.TokenKwPushtag:   SymbolPushtag,
	lexer.TokenKwPoptag:    SymbolPoptag,
}

type slotKind uint8

const (
	slotAccount slotKind = iota
	slotCurrency
	slotString
	slotTag
	slotAmount
	slotCurrencyList
	slotCustomValues
	slotTagsAndLinks
	slotNarration
)

type slot struct {
	kind     slotKind
	optional bool
}

// directiveArgs lists what follows the keyword of each directive.
var directiveArgs = map[uint16][]slot{
	SymbolOpen:      {{kind: slotAccount}, {kind: slotCurrencyList, optional: true}, {kind: slotString, optional: true}},
	SymbolClose:     {{kind: slotAccount}},
	SymbolBalance:   {{kind: slotAccount}, {kind: slotAmount}},
	SymbolPad:       {{kind: slotAccount}, {kind: slotAccount}},
	SymbolNote:      {{kind: slotAccount}, {kind: slotString}},
	SymbolDocument:  {{kind: slotAccount}, {kind: slotString}},
	SymbolCommodity: {{kind: slotCurrency}},
	SymbolPrice:     {{kind: slotCurrency}, {kind: slotAmount}},
	SymbolEvent:     {{kind: slotString}, {kind: slotString}},
	SymbolQuery:     {{kind: slotString}, {kind: slotString}},
	SymbolCustom:    {{kind: slotString}, {kind: slotCustomValues, optional: true}},
	SymbolOption:    {{kind: slotString}, {kind: slotString}},
	SymbolInclude:   {{kind: slotString}},
	SymbolPlugin:    {{kind: slotString}, {kind: slotString, optional: true}},
	SymbolPushtag:   {{kind: slotTag}},
	SymbolPoptag:    {{kind: slotTag}},
	SymbolTransaction: {
		{kind: slotNarration, optional: true},
		{kind: slotTagsAndLinks, optional: true},
	},
}

var undatedDirectives = map[uint16]bool{
	SymbolOption:  true,
	SymbolInclude: true,
	SymbolPlugin:  true,
	SymbolPushtag: true,
	SymbolPoptag:  true,
}

// rawNode is the reference engine's native node. Positions are absolute.
type rawNode struct {
	id       uint64
	sym      uint16
	start    int
	end      int
	missing  bool
	dirty    bool
	children []*rawNode
}

type item struct {
	tok       lexer.Token
	isComment bool
}

type line struct {
	indented    bool
	commentOnly bool
	items       []item
}

type builder struct {
	src    []byte
	nextID func() uint64
}

func (b *builder) node(sym uint16, start, end int, children ...*rawNode) *rawNode {
	return &rawNode{id: b.nextID(), sym: sym, start: start, end: end, children: children}
}

func (b *builder) leaf(tok lexer.Token) *rawNode {
	sym, ok := tokenSymbols[tok.Kind]
	switch {
	case tok.Kind.IsKeyword():
		sym = SymbolKeyword
	case !ok:
		sym = SymbolError
	}
	return b.node(sym, int(tok.Span.Start), int(tok.Span.End))
}

func (b *builder) missing(sym uint16, at int) *rawNode {
	n := b.node(sym, at, at)
	n.missing = true
	return n
}

func (b *builder) wrap(sym uint16, children []*rawNode) *rawNode {
	n := b.node(sym, 0, 0, children...)
	if len(children) > 0 {
		n.start = children[0].start
		n.end = children[len(children)-1].end
	}
	return n
}

func (b *builder) errorNode(items []item) *rawNode {
	children := make([]*rawNode, 0, len(items))
	for _, it := range items {
		children = append(children, b.itemNode(it))
	}
	return b.wrap(SymbolError, children)
}

func (b *builder) itemNode(it item) *rawNode {
	if it.isComment {
		return b.node(SymbolComment, int(it.tok.Span.Start), int(it.tok.Span.End))
	}
	return b.leaf(it.tok)
}

// parseSource builds a fresh tree for src. It never recurses on input depth.
func (b *builder) parseSource() *rawNode {
	lines := splitLines(lexer.Lex(b.src).Tokens)

	root := b.node(SymbolSourceFile, 0, len(b.src))
	var entry *rawNode
	var entrySym uint16
	closeEntry := func() {
		if entry != nil {
			entry.end = entry.children[len(entry.children)-1].end
			root.children = append(root.children, entry)
			entry = nil
		}
	}

	for _, ln := range lines {
		switch {
		case ln.commentOnly && (!ln.indented || entry == nil):
			closeEntry()
			root.children = append(root.children, b.itemNode(ln.items[0]))
		case ln.commentOnly:
			entry.children = append(entry.children, b.itemNode(ln.items[0]))
		case ln.indented && entry != nil:
			entry.children = append(entry.children, b.parseBodyLine(entrySym, ln.items)...)
		case ln.indented:
			root.children = append(root.children, b.errorNode(ln.items))
		default:
			closeEntry()
			var n *rawNode
			n, entrySym = b.parseHeader(ln.items)
			if entrySym == SymbolError {
				root.children = append(root.children, n)
				continue
			}
			entry = n
		}
	}
	closeEntry()
	return root
}

// splitLines groups tokens into physical lines and attributes comments.
func splitLines(tokens []lexer.Token) []line {
	var out []line
	cur := -1
	for _, tok := range tokens {
		sawNewline := cur < 0
		sawIndent := false
		for _, tr := range tok.Leading {
			switch tr.Kind {
			case lexer.TriviaNewline:
				sawNewline, sawIndent = true, false
			case lexer.TriviaWhitespace:
				if sawNewline {
					sawIndent = true
				}
			case lexer.TriviaComment:
				it := item{tok: lexer.Token{Span: tr.Span}, isComment: true}
				if !sawNewline && cur >= 0 {
					out[cur].items = append(out[cur].items, it)
					continue
				}
				out = append(out, line{indented: sawIndent, commentOnly: true, items: []item{it}})
			}
		}
		if tok.Kind == lexer.TokenEOF {
			break
		}
		if tok.Flags.Has(lexer.TokenFlagLineStart) || tok.Flags.Has(lexer.TokenFlagIndented) || cur < 0 {
			out = append(out, line{indented: tok.Flags.Has(lexer.TokenFlagIndented)})
			cur = len(out) - 1
		}
		out[cur].items = append(out[cur].items, item{tok: tok})
	}
	return out
}

type cursor struct {
	items []item
	pos   int
}

func (c *cursor) done() bool { return c.pos >= len(c.items) }

func (c *cursor) peek() (lexer.Token, bool) {
	if c.done() || c.items[c.pos].isComment {
		return lexer.Token{}, false
	}
	return c.items[c.pos].tok, true
}

func (c *cursor) peekKind() lexer.TokenKind {
	tok, ok := c.peek()
	if !ok {
		return lexer.TokenEOF
	}
	return tok.Kind
}

// offset is where a missing node is inserted.
func (c *cursor) offset() int {
	if !c.done() {
		return int(c.items[c.pos].tok.Span.Start)
	}
	for i := len(c.items) - 1; i >= 0; i-- {
		if !c.items[i].isComment {
			return int(c.items[i].tok.Span.End)
		}
	}
	return 0
}

// rest returns leftover items: tokens become an ERROR node, comments stay comments.
func (b *builder) rest(c *cursor) []*rawNode {
	var out []*rawNode
	var pending []item
	flush := func() {
		if len(pending) > 0 {
			out = append(out, b.errorNode(pending))
			pending = nil
		}
	}
	for ; !c.done(); c.pos++ {
		it := c.items[c.pos]
		if it.isComment {
			flush()
			out = append(out, b.itemNode(it))
			continue
		}
		pending = append(pending, it)
	}
	flush()
	return out
}

func (b *builder) parseHeader(items []item) (*rawNode, uint16) {
	c := &cursor{items: items}
	var children []*rawNode

	sym := SymbolError
	if c.peekKind() == lexer.TokenDate {
		tok, _ := c.peek()
		children = append(children, b.leaf(tok))
		c.pos++
		switch next := c.peekKind(); {
		case next == lexer.TokenStar || next == lexer.TokenFlag || next == lexer.TokenKwTxn:
			tok, _ := c.peek()
			flag := b.leaf(tok)
			flag.sym = SymbolFlag
			children = append(children, flag)
			c.pos++
			sym = SymbolTransaction
		case directiveSymbols[next] != 0 && !undatedDirectives[directiveSymbols[next]]:
			tok, _ := c.peek()
			children = append(children, b.leaf(tok))
			c.pos++
			sym = directiveSymbols[next]
		}
	} else if s := directiveSymbols[c.peekKind()]; undatedDirectives[s] {
		tok, _ := c.peek()
		children = append(children, b.leaf(tok))
		c.pos++
		sym = s
	}
	if sym == SymbolError {
		return b.errorNode(items), SymbolError
	}

	for _, sl := range directiveArgs[sym] {
		children = append(children, b.parseSlot(c, sl)...)
	}
	children = append(children, b.rest(c)...)
	return b.wrap(sym, children), sym
}

func (b *builder) parseSlot(c *cursor, sl slot) []*rawNode {
	single := func(kind lexer.TokenKind, sym uint16) []*rawNode {
		if tok, ok := c.peek(); ok && tok.Kind == kind {
			c.pos++
			return []*rawNode{b.leaf(tok)}
		}
		if sl.optional {
			return nil
		}
		return []*rawNode{b.missing(sym, c.offset())}
	}

	switch sl.kind {
	case slotAccount:
		return single(lexer.TokenAccount, SymbolAccount)
	case slotCurrency:
		return single(lexer.TokenCurrency, SymbolCurrency)
	case slotString:
		return single(lexer.TokenString, SymbolString)
	case slotTag:
		return single(lexer.TokenTag, SymbolTag)
	case slotAmount:
		if amt := b.parseAmount(c, true); amt != nil {
			return []*rawNode{amt}
		}
		return []*rawNode{b.missing(SymbolAmount, c.offset())}
	case slotCurrencyList:
		var out []*rawNode
		for c.peekKind() == lexer.TokenCurrency {
			tok, _ := c.peek()
			out = append(out, b.leaf(tok))
			c.pos++
			if c.peekKind() != lexer.TokenComma {
				break
			}
			comma, _ := c.peek()
			out = append(out, b.leaf(comma))
			c.pos++
			if c.peekKind() != lexer.TokenCurrency {
				out = append(out, b.missing(SymbolCurrency, c.offset()))
			}
		}
		return out
	case slotNarration:
		var out []*rawNode
		for i := 0; i < 2 && c.peekKind() == lexer.TokenString; i++ {
			tok, _ := c.peek()
			out = append(out, b.leaf(tok))
			c.pos++
		}
		return out
	case slotTagsAndLinks:
		var out []*rawNode
		for k := c.peekKind(); k == lexer.TokenTag || k == lexer.TokenLink; k = c.peekKind() {
			tok, _ := c.peek()
			out = append(out, b.leaf(tok))
			c.pos++
		}
		return out
	case slotCustomValues:
		var out []*rawNode
		for {
			switch c.peekKind() {
			case lexer.TokenString, lexer.TokenAccount, lexer.TokenBool, lexer.TokenDate, lexer.TokenCurrency:
				tok, _ := c.peek()
				out = append(out, b.leaf(tok))
				c.pos++
			case lexer.TokenNumber, lexer.TokenLParen, lexer.TokenMinus, lexer.TokenPlus:
				out = append(out, b.parseAmount(c, false))
			default:
				return out
			}
		}
	}
	return nil
}

// parseBodyLine parses an indented line inside an entry.
func (b *builder) parseBodyLine(entrySym uint16, items []item) []*rawNode {
	c := &cursor{items: items}

	if c.peekKind() == lexer.TokenKey {
		key, _ := c.peek()
		c.pos++
		children := []*rawNode{b.leaf(key)}
		switch c.peekKind() {
		case lexer.TokenString, lexer.TokenAccount, lexer.TokenCurrency, lexer.TokenDate, lexer.TokenTag, lexer.TokenBool:
			tok, _ := c.peek()
			children = append(children, b.leaf(tok))
			c.pos++
		case lexer.TokenNumber, lexer.TokenLParen, lexer.TokenMinus, lexer.TokenPlus:
			children = append(children, b.parseAmount(c, false))
		}
		out := []*rawNode{b.wrap(SymbolKeyValue, children)}
		return append(out, b.rest(c)...)
	}

	if entrySym != SymbolTransaction {
		return b.rest(c)
	}

	var children []*rawNode
	if k := c.peekKind(); k == lexer.TokenStar || k == lexer.TokenFlag {
		tok, _ := c.peek()
		flag := b.leaf(tok)
		flag.sym = SymbolFlag
		children = append(children, flag)
		c.pos++
	}
	if c.peekKind() != lexer.TokenAccount {
		if len(children) == 0 {
			return b.rest(c)
		}
		children = append(children, b.missing(SymbolAccount, c.offset()))
	} else {
		tok, _ := c.peek()
		children = append(children, b.leaf(tok))
		c.pos++
	}
	if amt := b.parseAmount(c, false); amt != nil {
		children = append(children, amt)
	}
	if k := c.peekKind(); k == lexer.TokenLCurl || k == lexer.TokenLDoubleCurl {
		children = append(children, b.parseCostSpec(c))
	}
	if k := c.peekKind(); k == lexer.TokenAt || k == lexer.TokenAtAt {
		tok, _ := c.peek()
		c.pos++
		ann := []*rawNode{b.leaf(tok)}
		if amt := b.parseAmount(c, true); amt != nil {
			ann = append(ann, amt)
		} else {
			ann = append(ann, b.missing(SymbolAmount, c.offset()))
		}
		children = append(children, b.wrap(SymbolPriceAnnotation, ann))
	}
	out := []*rawNode{b.wrap(SymbolPosting, children)}
	return append(out, b.rest(c)...)
}

func (b *builder) parseCostSpec(c *cursor) *rawNode {
	open, _ := c.peek()
	c.pos++
	closeKind, closeSym := lexer.TokenRCurl, SymbolRCurl
	if open.Kind == lexer.TokenLDoubleCurl {
		closeKind, closeSym = lexer.TokenRDoubleCurl, SymbolRDoubleCurl
	}
	children := []*rawNode{b.leaf(open)}
	for {
		switch k := c.peekKind(); k {
		case closeKind:
			tok, _ := c.peek()
			c.pos++
			return b.wrap(SymbolCostSpec, append(children, b.leaf(tok)))
		case lexer.TokenNumber, lexer.TokenLParen, lexer.TokenMinus, lexer.TokenPlus:
			children = append(children, b.parseAmount(c, false))
		case lexer.TokenDate, lexer.TokenString, lexer.TokenComma, lexer.TokenCurrency, lexer.TokenStar:
			tok, _ := c.peek()
			children = append(children, b.leaf(tok))
			c.pos++
		default:
			return b.wrap(SymbolCostSpec, append(children, b.missing(closeSym, c.offset())))
		}
	}
}

// parseAmount parses an arithmetic expression followed by a currency. With
// requireCurrency a missing currency is recorded as a MISSING node.
func (b *builder) parseAmount(c *cursor, requireCurrency bool) *rawNode {
	expr := b.parseExpr(c)
	if expr == nil {
		if requireCurrency {
			return nil
		}
		if c.peekKind() != lexer.TokenCurrency {
			return nil
		}
	}
	var children []*rawNode
	if expr != nil {
		children = append(children, expr)
	}
	switch {
	case c.peekKind() == lexer.TokenCurrency:
		tok, _ := c.peek()
		children = append(children, b.leaf(tok))
		c.pos++
	case requireCurrency:
		children = append(children, b.missing(SymbolCurrency, c.offset()))
	}
	return b.wrap(SymbolAmount, children)
}

type opKind uint8

const (
	opBinary opKind = iota
	opUnary
	opParen
)

type pendingOp struct {
	kind opKind
	tok  lexer.Token
}

func precedence(k lexer.TokenKind) int {
	if k == lexer.TokenStar || k == lexer.TokenSlash {
		return 2
	}
	return 1
}

// parseExpr is an operator-precedence parser with explicit stacks so that
// deeply nested parentheses cannot exhaust the goroutine stack.
func (b *builder) parseExpr(c *cursor) *rawNode {
	switch c.peekKind() {
	case lexer.TokenNumber, lexer.TokenLParen, lexer.TokenMinus, lexer.TokenPlus:
	default:
		return nil
	}

	var operands []*rawNode
	var ops []pendingOp
	pop := func() *rawNode {
		n := operands[len(operands)-1]
		operands = operands[:len(operands)-1]
		return n
	}
	reduce := func() {
		op := ops[len(ops)-1]
		ops = ops[:len(ops)-1]
		switch op.kind {
		case opBinary:
			right := pop()
			left := pop()
			operands = append(operands, b.wrap(SymbolBinaryExpr, []*rawNode{left, b.leaf(op.tok), right}))
		case opUnary:
			operand := pop()
			operands = append(operands, b.wrap(SymbolUnaryExpr, []*rawNode{b.leaf(op.tok), operand}))
		case opParen:
			inner := pop()
			operands = append(operands, b.wrap(SymbolParenExpr, []*rawNode{b.leaf(op.tok), inner, b.missing(SymbolRParen, inner.end)}))
		}
	}

	expectOperand := true
loop:
	for {
		tok, ok := c.peek()
		if !ok {
			break
		}
		if expectOperand {
			switch tok.Kind {
			case lexer.TokenNumber:
				operands = append(operands, b.leaf(tok))
				expectOperand = false
			case lexer.TokenLParen:
				ops = append(ops, pendingOp{kind: opParen, tok: tok})
			case lexer.TokenMinus, lexer.TokenPlus:
				ops = append(ops, pendingOp{kind: opUnary, tok: tok})
			default:
				break loop
			}
			c.pos++
			continue
		}

		switch tok.Kind {
		case lexer.TokenPlus, lexer.TokenMinus, lexer.TokenStar, lexer.TokenSlash:
			for len(ops) > 0 {
				top := ops[len(ops)-1]
				if top.kind == opParen || (top.kind == opBinary && precedence(top.tok.Kind) < precedence(tok.Kind)) {
					break
				}
				reduce()
			}
			ops = append(ops, pendingOp{kind: opBinary, tok: tok})
			expectOperand = true
		case lexer.TokenRParen:
			depth := -1
			for i := len(ops) - 1; i >= 0; i-- {
				if ops[i].kind == opParen {
					depth = i
					break
				}
			}
			if depth < 0 {
				break loop
			}
			for len(ops)-1 > depth {
				reduce()
			}
			open := ops[depth]
			ops = ops[:depth]
			inner := pop()
			operands = append(operands, b.wrap(SymbolParenExpr, []*rawNode{b.leaf(open.tok), inner, b.leaf(tok)}))
		default:
			break loop
		}
		c.pos++
	}

	if expectOperand {
		operands = append(operands, b.missing(SymbolNumber, c.offset()))
	}
	for len(ops) > 0 {
		reduce()
	}
	return operands[len(operands)-1]
}
