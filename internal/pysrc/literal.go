package pysrc

import (
	"strconv"
	"strings"
)

// Literal evaluates a constant expression: strings, numbers, booleans,
// None, and lists, tuples, sets and dicts of those. Dict keys are
// stringified. The second result is false when any part is not constant.
func Literal(n *Node) (any, bool) {
	n = n.Unwrap()
	if n == nil {
		return nil, false
	}
	switch n.Kind {
	case KindString:
		return stringLiteral(n)
	case KindConcatString:
		var b strings.Builder
		for _, part := range n.Children {
			s, ok := stringLiteral(part)
			if !ok {
				return nil, false
			}
			b.WriteString(s.(string))
		}
		return b.String(), true
	case KindInteger:
		return intLiteral(n.Text)
	case KindFloat:
		f, err := strconv.ParseFloat(strings.ReplaceAll(n.Text, "_", ""), 64)
		return f, err == nil
	case KindTrue:
		return true, true
	case KindFalse:
		return false, true
	case KindNone:
		return nil, true
	case KindUnary:
		v, ok := Literal(n.Field("argument"))
		if !ok {
			return nil, false
		}
		switch n.Operator() {
		case "-":
			switch x := v.(type) {
			case int:
				return -x, true
			case float64:
				return -x, true
			}
		case "+":
			switch v.(type) {
			case int, float64:
				return v, true
			}
		}
		return nil, false
	case KindList, KindTuple, KindSet:
		out := make([]any, 0, len(n.Children))
		for _, c := range n.Children {
			v, ok := Literal(c)
			if !ok {
				return nil, false
			}
			out = append(out, v)
		}
		return out, true
	case KindDictionary:
		out := make(map[string]any, len(n.Children))
		for _, pair := range n.Children {
			if !pair.Is(KindPair) {
				return nil, false
			}
			k, ok := Literal(pair.Field("key"))
			if !ok {
				return nil, false
			}
			v, ok := Literal(pair.Field("value"))
			if !ok {
				return nil, false
			}
			out[keyString(k)] = v
		}
		return out, true
	}
	return nil, false
}

// StringValue returns the value of a constant string expression.
func StringValue(n *Node) (string, bool) {
	v, ok := Literal(n)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func keyString(k any) string {
	switch v := k.(type) {
	case string:
		return v
	case nil:
		return "None"
	case bool:
		if v {
			return "True"
		}
		return "False"
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

func intLiteral(text string) (any, bool) {
	text = strings.ReplaceAll(text, "_", "")
	text = strings.TrimRight(text, "lL")
	if len(text) > 1 && text[0] == '0' && text[1] >= '0' && text[1] <= '9' {
		// Python 3 has no legacy octal; leading zeros only appear in "00".
		text = strings.TrimLeft(text, "0")
		if text == "" {
			return 0, true
		}
	}
	i, err := strconv.ParseInt(strings.ToLower(text), 0, 64)
	if err != nil {
		return nil, false
	}
	return int(i), true
}

func stringLiteral(n *Node) (any, bool) {
	if !n.Is(KindString) {
		return nil, false
	}
	for _, c := range n.Children {
		if c.Kind == "interpolation" {
			return nil, false
		}
	}
	text := n.Text
	i := 0
	for i < len(text) && text[i] != '"' && text[i] != '\'' {
		i++
	}
	prefix := strings.ToLower(text[:i])
	body := text[i:]
	if strings.Contains(prefix, "b") {
		return nil, false
	}

	quote := body[:1]
	if strings.HasPrefix(body, `"""`) || strings.HasPrefix(body, `'''`) {
		quote = body[:3]
	}
	if len(body) < 2*len(quote) {
		return nil, false
	}
	body = body[len(quote) : len(body)-len(quote)]

	if strings.Contains(prefix, "r") {
		return body, true
	}
	if strings.Contains(prefix, "f") {
		body = strings.NewReplacer("{{", "{", "}}", "}").Replace(body)
	}
	return unescape(body), true
}

// unescape decodes Python escape sequences. Unknown escapes keep their
// backslash, as Python does.
func unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	for len(s) > 0 {
		if s[0] != '\\' || len(s) == 1 {
			b.WriteByte(s[0])
			s = s[1:]
			continue
		}
		switch s[1] {
		case '\'', '"':
			b.WriteByte(s[1])
			s = s[2:]
			continue
		case '\n':
			s = s[2:]
			continue
		}
		r, _, tail, err := strconv.UnquoteChar(s, 0)
		if err != nil {
			b.WriteByte('\\')
			s = s[1:]
			continue
		}
		b.WriteRune(r)
		s = tail
	}
	return b.String()
}
