package password

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// Blacklist es un set case-insensitive de passwords prohibidos. Es inmutable
// después de construido.
type Blacklist struct {
	data map[string]struct{}
}

// CommonPasswords es la blacklist embebida que se usa cuando no se
// configura un archivo.
var CommonPasswords = NewBlacklist(
	"123456", "12345678", "123456789", "1234567890", "password", "password1",
	"password123", "qwerty", "qwerty123", "abc123", "111111", "123123",
	"letmein", "welcome", "welcome1", "admin", "admin123", "iloveyou",
	"monkey", "dragon", "football", "baseball", "sunshine", "princess",
	"passw0rd", "p@ssw0rd", "p@ssword1", "changeme", "secret", "trustno1",
)

func NewBlacklist(words ...string) *Blacklist {
	bl := &Blacklist{data: make(map[string]struct{}, len(words))}
	for _, w := range words {
		bl.add(w)
	}
	return bl
}

// LoadBlacklist lee un password por línea; ignora vacías y comentarios (#).
// Path vacío devuelve CommonPasswords.
func LoadBlacklist(path string) (*Blacklist, error) {
	if strings.TrimSpace(path) == "" {
		return CommonPasswords, nil
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bl := NewBlacklist()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		bl.add(line)
	}
	return bl, sc.Err()
}

func (b *Blacklist) add(w string) {
	if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
		b.data[w] = struct{}{}
	}
}

func (b *Blacklist) Contains(pw string) bool {
	if b == nil {
		return false
	}
	_, ok := b.data[strings.ToLower(strings.TrimSpace(pw))]
	return ok
}

func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.data)
}
