package compiler

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// macro is a defined substitution, either object-like or function-like.
type macro struct {
	args []string // nil for object-like macros
	body string
}

// preprocessor walks sources line by line, expanding #include and #define
// directives before the lexer ever sees the text.
type preprocessor struct {
	defines map[string]macro
	// processed holds include-once state for the whole run; onStack holds
	// the current include chain for cycle detection.
	processed map[string]bool
	onStack   map[string]bool
}

// Preprocess expands #include "file" directives (resolved against baseDir,
// with cycle detection and include-once) and #define macros in src.
func Preprocess(src string, baseDir string) (string, error) {
	pp := &preprocessor{
		defines:   make(map[string]macro),
		processed: make(map[string]bool),
		onStack:   make(map[string]bool),
	}
	return pp.expand(src, baseDir)
}

func (pp *preprocessor) expand(src, baseDir string) (string, error) {
	var out strings.Builder
	for _, line := range strings.Split(src, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "#define"):
			if err := pp.define(strings.TrimPrefix(trimmed, "#define")); err != nil {
				return "", err
			}
			out.WriteString("\n") // keep line numbers stable
		case strings.HasPrefix(trimmed, "#include"):
			content, err := pp.include(strings.TrimPrefix(trimmed, "#include"), baseDir)
			if err != nil {
				return "", err
			}
			out.WriteString(content)
			out.WriteString("\n")
		default:
			out.WriteString(pp.substitute(line))
			out.WriteString("\n")
		}
	}
	return out.String(), nil
}

// define parses the remainder of a #define line.
func (pp *preprocessor) define(rest string) error {
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return nil
	}
	nameEnd := 0
	for nameEnd < len(rest) && rest[nameEnd] != ' ' && rest[nameEnd] != '\t' && rest[nameEnd] != '(' {
		nameEnd++
	}
	name := rest[:nameEnd]
	rest = rest[nameEnd:]

	var args []string
	if len(rest) > 0 && rest[0] == '(' {
		end := strings.Index(rest, ")")
		if end == -1 {
			return errors.Errorf("unterminated parameter list in #define %s", name)
		}
		for _, a := range strings.Split(rest[1:end], ",") {
			if a = strings.TrimSpace(a); a != "" {
				args = append(args, a)
			}
		}
		rest = rest[end+1:]
	}

	body := strings.TrimSpace(rest)
	if len(args) == 0 {
		// object-like bodies are expanded at definition time
		body = pp.substitute(body)
	}
	pp.defines[name] = macro{args: args, body: body}
	return nil
}

// include reads and recursively expands one #include target. Both "file"
// and <file> forms resolve against the including file's directory.
func (pp *preprocessor) include(rest, baseDir string) (string, error) {
	rest = strings.TrimSpace(rest)
	var filename string
	switch {
	case len(rest) > 2 && rest[0] == '"' && rest[len(rest)-1] == '"':
		filename = rest[1 : len(rest)-1]
	case len(rest) > 2 && rest[0] == '<' && rest[len(rest)-1] == '>':
		filename = rest[1 : len(rest)-1]
	default:
		return "", errors.Errorf("invalid include directive: #include %s", rest)
	}

	fullPath := filepath.Join(baseDir, filename)
	absPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", errors.Wrapf(err, "resolving include %q", filename)
	}
	if pp.onStack[absPath] {
		return "", errors.Errorf("circular include detected: %q", filename)
	}
	if pp.processed[absPath] {
		return "", nil
	}
	content, err := os.ReadFile(fullPath)
	if err != nil {
		return "", errors.Wrapf(err, "reading included file %q", filename)
	}
	pp.processed[absPath] = true
	pp.onStack[absPath] = true
	expanded, err := pp.expand(string(content), filepath.Dir(fullPath))
	delete(pp.onStack, absPath)
	return expanded, err
}

// substitute replaces macro names in line on word boundaries, leaving
// string and character literals untouched.
func (pp *preprocessor) substitute(line string) string {
	if len(pp.defines) == 0 {
		return line
	}
	var sb strings.Builder
	i, n := 0, len(line)
	for i < n {
		switch {
		case line[i] == '"' || line[i] == '\'':
			i = copyLiteral(&sb, line, i)
		case isIdentStart(line[i]):
			start := i
			for i < n && isIdentPart(line[i]) {
				i++
			}
			word := line[start:i]
			m, ok := pp.defines[word]
			if !ok {
				sb.WriteString(word)
				continue
			}
			if m.args == nil {
				sb.WriteString(m.body)
				continue
			}
			expanded, next, ok := pp.expandCall(m, line, i)
			if !ok {
				sb.WriteString(word) // not followed by '(': leave it alone
				continue
			}
			sb.WriteString(expanded)
			i = next
		default:
			sb.WriteByte(line[i])
			i++
		}
	}
	return sb.String()
}

// expandCall parses the argument list of a function-like macro use starting
// at i and returns the expanded body and the position after ')'.
func (pp *preprocessor) expandCall(m macro, line string, i int) (string, int, bool) {
	n := len(line)
	j := i
	for j < n && (line[j] == ' ' || line[j] == '\t') {
		j++
	}
	if j >= n || line[j] != '(' {
		return "", i, false
	}
	j++
	var args []string
	var cur strings.Builder
	depth := 1
	for j < n && depth > 0 {
		switch {
		case line[j] == '(':
			depth++
			cur.WriteByte(line[j])
		case line[j] == ')':
			depth--
			if depth > 0 {
				cur.WriteByte(line[j])
			}
		case line[j] == ',' && depth == 1:
			args = append(args, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(line[j])
		}
		j++
	}
	if depth != 0 {
		return "", i, false
	}
	args = append(args, strings.TrimSpace(cur.String()))
	if len(args) != len(m.args) {
		return "", i, false
	}

	// substitute the parameters, then any other macros in the result
	params := &preprocessor{defines: make(map[string]macro, len(m.args))}
	for k, name := range m.args {
		params.defines[name] = macro{body: args[k]}
	}
	return pp.substitute(params.substitute(m.body)), j, true
}

// copyLiteral copies a string or char literal verbatim, honoring escapes,
// and returns the position after it.
func copyLiteral(sb *strings.Builder, line string, i int) int {
	quote := line[i]
	sb.WriteByte(quote)
	i++
	for i < len(line) {
		c := line[i]
		sb.WriteByte(c)
		i++
		if c == '\\' && i < len(line) {
			sb.WriteByte(line[i])
			i++
			continue
		}
		if c == quote {
			break
		}
	}
	return i
}

func isIdentStart(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
