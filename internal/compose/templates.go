package compose

const htmlBody = `<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; color: #222222;">
<p>Hello {{.Name}},</p>
<p>Here is your inventory update for {{.Date}}.</p>
{{range $i, $f := .Fragments}}{{if $i}}<hr>
{{end}}<h3>{{$f.Title}}</h3>
<ul>
{{range $f.Lines}}<li>{{.}}</li>
{{end}}</ul>
{{end}}<p style="color: #888888; font-size: 12px;">{{.Footer}}</p>
</body>
</html>
`

const textBody = `Hello {{.Name}},

Here is your inventory update for {{.Date}}.

{{range $i, $f := .Fragments}}{{if $i}}----------------------------------------
{{end}}{{$f.Title}}
{{range $f.Lines}}- {{.}}
{{end}}
{{end}}{{.Footer}}
`
