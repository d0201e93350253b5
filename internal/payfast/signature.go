package payfast

import (
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
)

const upperhex = "0123456789ABCDEF"

// escape percent-encodes s the way the gateway canonicalizes form values:
// every byte outside A-Z a-z 0-9 - _ . ! ~ * ' ( ) becomes %XX.
func escape(s string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !unreserved(s[i]) {
			n++
		}
	}
	if n == 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if unreserved(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(upperhex[c>>4])
		b.WriteByte(upperhex[c&15])
	}
	return b.String()
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	switch c {
	case '-', '_', '.', '!', '~', '*', '\'', '(', ')':
		return true
	}
	return false
}

// canonical renders fields as sorted key=value pairs with the optional
// passphrase appended last. The passphrase goes in verbatim; the gateway
// does not encode it.
func canonical(fields map[string]string, passphrase string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(escape(k))
		b.WriteByte('=')
		b.WriteString(escape(fields[k]))
	}
	if passphrase != "" {
		b.WriteString("&passphrase=")
		b.WriteString(passphrase)
	}
	return b.String()
}

func digest(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
