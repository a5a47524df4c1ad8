package junitxml

import (
	"strconv"
	"strings"
)

// decodeEntities decodes the standard XML predefined entities plus
// numeric character references. It is applied only where spec.md
// calls for it: computed_name construction, never to the raw
// name/classname fields themselves (see rawattr.go).
func decodeEntities(s string) string {
	if !strings.ContainsRune(s, '&') {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '&' {
			b.WriteByte(c)
			continue
		}

		end := strings.IndexByte(s[i:], ';')
		if end < 0 {
			b.WriteByte(c)
			continue
		}
		end += i

		entity := s[i+1 : end]
		if decoded, ok := decodeOneEntity(entity); ok {
			b.WriteString(decoded)
			i = end
			continue
		}

		b.WriteByte(c)
	}

	return b.String()
}

func decodeOneEntity(entity string) (string, bool) {
	switch entity {
	case "lt":
		return "<", true
	case "gt":
		return ">", true
	case "amp":
		return "&", true
	case "quot":
		return "\"", true
	case "apos":
		return "'", true
	}

	if len(entity) > 1 && entity[0] == '#' {
		var (
			n   uint64
			err error
		)
		if len(entity) > 2 && (entity[1] == 'x' || entity[1] == 'X') {
			n, err = strconv.ParseUint(entity[2:], 16, 32)
		} else {
			n, err = strconv.ParseUint(entity[1:], 10, 32)
		}
		if err == nil {
			return string(rune(n)), true
		}
	}

	return "", false
}
