package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store loads named prompt templates from a directory. Templates are plain
// text files with {field} placeholders rendered by Render.
type Store struct {
	dir       string
	templates map[string]string
}

// NewStore reads every .txt file under dir and indexes it by base name
// without the extension.
func NewStore(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read prompt dir: %w", err)
	}

	templates := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".txt") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read prompt %s: %w", entry.Name(), err)
		}
		name := strings.TrimSuffix(entry.Name(), ".txt")
		templates[name] = string(raw)
	}
	return &Store{dir: dir, templates: templates}, nil
}

// Render substitutes {field} placeholders in the named template with values
// from fields. A placeholder with no matching key is a rendering error.
func (s *Store) Render(name string, fields map[string]string) (string, error) {
	tmpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("prompt template %q not found", name)
	}
	return render(tmpl, fields)
}

// Names returns the loaded template names.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.templates))
	for name := range s.templates {
		names = append(names, name)
	}
	return names
}

func render(tmpl string, fields map[string]string) (string, error) {
	var out strings.Builder
	out.Grow(len(tmpl))

	for i := 0; i < len(tmpl); {
		open := strings.IndexByte(tmpl[i:], '{')
		if open < 0 {
			out.WriteString(tmpl[i:])
			break
		}
		open += i
		out.WriteString(tmpl[i:open])

		// {{ renders a literal brace.
		if open+1 < len(tmpl) && tmpl[open+1] == '{' {
			out.WriteByte('{')
			i = open + 2
			continue
		}

		closing := strings.IndexByte(tmpl[open:], '}')
		if closing < 0 {
			return "", fmt.Errorf("unterminated placeholder at offset %d", open)
		}
		closing += open

		key := tmpl[open+1 : closing]
		value, ok := fields[key]
		if !ok {
			return "", fmt.Errorf("missing template field %q", key)
		}
		out.WriteString(value)
		i = closing + 1
	}
	return out.String(), nil
}
