package extract

import (
	"bytes"
	"strconv"
	"strings"
)

// TextFromContent pulls the shown text out of a decoded page content stream.
// Strings drawn with Tj, TJ, ' and " are concatenated; text positioning
// operators that move to a new line start a new output line. Large negative
// kerning inside TJ arrays is treated as a word gap.
func TextFromContent(content []byte) string {
	var (
		out     strings.Builder
		line    strings.Builder
		operand []string
		array   []string
		inArray bool
	)
	flush := func() {
		text := strings.TrimRight(line.String(), " ")
		if text != "" {
			out.WriteString(text)
			out.WriteByte('\n')
		}
		line.Reset()
	}

	s := &scanner{data: content}
	for {
		tok, kind := s.next()
		if kind == tokEOF {
			break
		}
		switch kind {
		case tokString:
			if inArray {
				array = append(array, tok)
			} else {
				operand = append(operand, tok)
			}
		case tokNumber:
			if inArray {
				if n, err := strconv.ParseFloat(tok, 64); err == nil && n < -200 {
					array = append(array, " ")
				}
			}
		case tokArrayStart:
			inArray = true
			array = array[:0]
		case tokArrayEnd:
			inArray = false
		case tokOperator:
			switch tok {
			case "Tj":
				for _, v := range operand {
					line.WriteString(v)
				}
			case "TJ":
				for _, v := range array {
					line.WriteString(v)
				}
				array = array[:0]
			case "'", "\"":
				flush()
				if len(operand) > 0 {
					line.WriteString(operand[len(operand)-1])
				}
			case "Td", "TD", "T*", "ET":
				flush()
			case "Tm":
				flush()
			}
			operand = operand[:0]
		}
	}
	flush()
	return strings.TrimRight(out.String(), "\n")
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokNumber
	tokArrayStart
	tokArrayEnd
	tokOperator
	tokOther
)

type scanner struct {
	data []byte
	pos  int
}

func (s *scanner) next() (string, tokenKind) {
	s.skipSpaceAndComments()
	if s.pos >= len(s.data) {
		return "", tokEOF
	}
	c := s.data[s.pos]
	switch {
	case c == '(':
		return s.literal(), tokString
	case c == '<' && s.peek(1) == '<':
		s.pos += 2
		return "<<", tokOther
	case c == '>' && s.peek(1) == '>':
		s.pos += 2
		return ">>", tokOther
	case c == '<':
		return s.hex(), tokString
	case c == '[':
		s.pos++
		return "[", tokArrayStart
	case c == ']':
		s.pos++
		return "]", tokArrayEnd
	case c == '/':
		s.pos++
		return s.word(), tokOther
	case c == '{' || c == '}' || c == ')' || c == '>':
		s.pos++
		return string(c), tokOther
	case c == '+' || c == '-' || c == '.' || (c >= '0' && c <= '9'):
		return s.word(), tokNumber
	default:
		return s.word(), tokOperator
	}
}

func (s *scanner) peek(offset int) byte {
	if s.pos+offset < len(s.data) {
		return s.data[s.pos+offset]
	}
	return 0
}

func (s *scanner) skipSpaceAndComments() {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == '%' {
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
			continue
		}
		if !isSpace(c) {
			return
		}
		s.pos++
	}
}

func (s *scanner) word() string {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if isSpace(c) || isDelimiter(c) {
			break
		}
		s.pos++
	}
	if s.pos == start {
		s.pos++
	}
	return string(s.data[start:s.pos])
}

func (s *scanner) literal() string {
	var buf bytes.Buffer
	depth := 0
	s.pos++ // opening paren
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '\\':
			if s.pos >= len(s.data) {
				return buf.String()
			}
			esc := s.data[s.pos]
			s.pos++
			switch esc {
			case 'n':
				buf.WriteByte('\n')
			case 'r':
				buf.WriteByte('\r')
			case 't':
				buf.WriteByte('\t')
			case 'b':
				buf.WriteByte('\b')
			case 'f':
				buf.WriteByte('\f')
			case '\r', '\n':
				// line continuation
			default:
				if esc >= '0' && esc <= '7' {
					value := int(esc - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						value = value*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					buf.WriteByte(byte(value))
				} else {
					buf.WriteByte(esc)
				}
			}
		case '(':
			depth++
			buf.WriteByte(c)
		case ')':
			if depth == 0 {
				return decodePDFString(buf.Bytes())
			}
			depth--
			buf.WriteByte(c)
		default:
			buf.WriteByte(c)
		}
	}
	return decodePDFString(buf.Bytes())
}

func (s *scanner) hex() string {
	s.pos++ // opening angle bracket
	var digits []byte
	for s.pos < len(s.data) && s.data[s.pos] != '>' {
		if c := s.data[s.pos]; !isSpace(c) {
			digits = append(digits, c)
		}
		s.pos++
	}
	s.pos++
	if len(digits)%2 == 1 {
		digits = append(digits, '0')
	}
	raw := make([]byte, 0, len(digits)/2)
	for i := 0; i+1 < len(digits); i += 2 {
		v, err := strconv.ParseUint(string(digits[i:i+2]), 16, 8)
		if err != nil {
			return ""
		}
		raw = append(raw, byte(v))
	}
	return decodePDFString(raw)
}

// decodePDFString handles UTF-16BE strings (with BOM) and otherwise maps
// bytes one-to-one, dropping control characters.
func decodePDFString(raw []byte) string {
	if len(raw) >= 2 && raw[0] == 0xFE && raw[1] == 0xFF {
		runes := make([]rune, 0, (len(raw)-2)/2)
		for i := 2; i+1 < len(raw); i += 2 {
			runes = append(runes, rune(raw[i])<<8|rune(raw[i+1]))
		}
		return string(runes)
	}
	var b strings.Builder
	for _, c := range raw {
		if c < 0x20 && c != '\t' {
			continue
		}
		b.WriteRune(rune(c))
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == 0
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}
