package epub

import "text/template"

// Template data is escaped before rendering.

var containerTmpl = template.Must(template.New("container").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`))

var opfTmpl = template.Must(template.New("opf").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="book-id" xml:lang="{{.Language}}">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
    <dc:identifier id="book-id">urn:uuid:{{.ID}}</dc:identifier>
    <dc:title>{{.Title}}</dc:title>
    <dc:language>{{.Language}}</dc:language>
{{- if .Author}}
    <dc:creator>{{.Author}}</dc:creator>
{{- end}}
{{- if .Description}}
    <dc:description>{{.Description}}</dc:description>
{{- end}}
    <meta property="dcterms:modified">{{.Modified}}</meta>
  </metadata>
  <manifest>
    <item id="nav" href="nav.xhtml" media-type="application/xhtml+xml" properties="nav"/>
{{- range .Chapters}}
    <item id="{{.ID}}" href="{{.File}}" media-type="application/xhtml+xml"/>
{{- end}}
  </manifest>
  <spine>
{{- range .Chapters}}
    <itemref idref="{{.ID}}"/>
{{- end}}
  </spine>
</package>
`))

var navTmpl = template.Must(template.New("nav").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops" xml:lang="{{.Language}}">
<head><title>{{.Title}}</title></head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>{{.Title}}</h1>
    <ol>
{{- range .Chapters}}
      <li><a href="{{.File}}">{{.Title}}</a></li>
{{- end}}
    </ol>
  </nav>
</body>
</html>
`))

var chapterTmpl = template.Must(template.New("chapter").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xml:lang="{{.Language}}">
<head><title>{{.Title}}</title></head>
<body>
  <h1>{{.Title}}</h1>
{{- if .Subtitle}}
  <p class="subtitle">{{.Subtitle}}</p>
{{- end}}
{{- range .Sections}}
  <section>
{{- if .Title}}
    <h2>{{.Title}}</h2>
{{- end}}
{{- range .Paragraphs}}
    <p>{{.}}</p>
{{- end}}
  </section>
{{- end}}
</body>
</html>
`))
