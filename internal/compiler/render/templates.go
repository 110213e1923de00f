package render

import (
	"bytes"
	"embed"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

//go:embed templates
var templateFS embed.FS

// mustTemplate parses one embedded template with the sprig function map.
// A parse failure is a packaging bug, caught at first use in any test.
func mustTemplate(file string) *template.Template {
	t, err := template.New(file).Funcs(sprig.TxtFuncMap()).ParseFS(templateFS, "templates/"+file)
	if err != nil {
		panic(err)
	}
	return t
}

func execute(tmpl *template.Template, data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
