package builder

import (
	"bytes"
	"encoding/xml"
	"text/template"
	"time"

	"github.com/wudi/tagpdf/ir/semantic"
)

var xmpTemplate = template.Must(template.New("xmp").Funcs(template.FuncMap{
	"x": func(s string) string {
		var buf bytes.Buffer
		_ = xml.EscapeText(&buf, []byte(s))
		return buf.String()
	},
	"date": func(t time.Time) string { return t.Format(time.RFC3339) },
}).Parse(`<?xpacket begin="` + "\ufeff" + `" id="W5M0MpCehiHzreSzNTczkc9d"?>
<x:xmpmeta xmlns:x="adobe:ns:meta/">
  <rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#">
    <rdf:Description rdf:about=""
        xmlns:dc="http://purl.org/dc/elements/1.1/"
        xmlns:pdf="http://ns.adobe.com/pdf/1.3/"
        xmlns:xmp="http://ns.adobe.com/xap/1.0/"
        xmlns:pdfuaid="http://www.aiim.org/pdfua/ns/id/">
      <dc:format>application/pdf</dc:format>
{{- if .Title}}
      <dc:title><rdf:Alt><rdf:li xml:lang="x-default">{{x .Title}}</rdf:li></rdf:Alt></dc:title>
{{- end}}
{{- if .Lang}}
      <dc:language><rdf:Bag><rdf:li>{{x .Lang}}</rdf:li></rdf:Bag></dc:language>
{{- end}}
{{- if .Producer}}
      <pdf:Producer>{{x .Producer}}</pdf:Producer>
{{- end}}
{{- if .Creator}}
      <xmp:CreatorTool>{{x .Creator}}</xmp:CreatorTool>
{{- end}}
{{- if not .Created.IsZero}}
      <xmp:CreateDate>{{date .Created}}</xmp:CreateDate>
{{- end}}
      <pdfuaid:part>1</pdfuaid:part>
    </rdf:Description>
  </rdf:RDF>
</x:xmpmeta>
<?xpacket end="w"?>`))

// uaMetadata renders an XMP packet mirroring info and declaring PDF/UA-1.
func uaMetadata(info *semantic.DocumentInfo, lang string) []byte {
	var data struct {
		Title, Lang, Producer, Creator string
		Created                        time.Time
	}
	data.Lang = lang
	if info != nil {
		data.Title = info.Title
		data.Producer = info.Producer
		data.Creator = info.Creator
		data.Created = info.CreationDate
	}
	var buf bytes.Buffer
	if err := xmpTemplate.Execute(&buf, data); err != nil {
		return nil
	}
	return buf.Bytes()
}
