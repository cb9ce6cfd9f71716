package eval

import (
	"strconv"
	"strings"

	"github.com/crystal-mush/mushqd/pkg/gamedb"
)

// SubstContext supplies the values percent escapes expand to.
type SubstContext struct {
	Player gamedb.DBRef // %! executor
	Cause  gamedb.DBRef // %# enactor
	Name   string       // %n enactor name
	Env    []string     // %0-%9 positional args
	Regs   *RegisterData
}

// Substitute expands the percent escapes of a command string: %0-%9 from
// the environment, %q<reg> from the register file, %n/%# for the enactor,
// %! for the executor, %% for a literal percent, and the usual %r/%t/%b
// whitespace escapes. Unknown escapes pass through unchanged.
func Substitute(text string, ctx *SubstContext) string {
	if !strings.ContainsRune(text, '%') {
		return text
	}
	var b strings.Builder
	b.Grow(len(text))
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '%' || i+1 >= len(text) {
			b.WriteByte(c)
			continue
		}
		i++
		switch n := text[i]; {
		case n >= '0' && n <= '9':
			slot := int(n - '0')
			if slot < len(ctx.Env) {
				b.WriteString(ctx.Env[slot])
			}
		case n == 'q' || n == 'Q':
			if i+1 >= len(text) {
				break
			}
			i++
			if idx := QRegIndex(text[i]); idx >= 0 && ctx.Regs != nil {
				b.WriteString(ctx.Regs.QRegs[idx])
			}
		case n == 'n' || n == 'N':
			b.WriteString(ctx.Name)
		case n == '#':
			b.WriteByte('#')
			b.WriteString(strconv.Itoa(int(ctx.Cause)))
		case n == '!':
			b.WriteByte('#')
			b.WriteString(strconv.Itoa(int(ctx.Player)))
		case n == 'r' || n == 'R':
			b.WriteString("\r\n")
		case n == 't' || n == 'T':
			b.WriteByte('\t')
		case n == 'b' || n == 'B':
			b.WriteByte(' ')
		case n == '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(n)
		}
	}
	return b.String()
}
