package appointment

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
)

// defaultMailTemplate es el cuerpo del correo de convocatoria cuando el
// departamento no aporta plantilla propia.
const defaultMailTemplate = `<p>Apreciado/a ciudadano/a,</p>
<p>Le confirmamos su cita de atención por videollamada con {{.DepartmentName}}.</p>
<ul>
  <li>Identificador de la cita: <strong>{{.ExternalID}}</strong></li>
  <li>Día: <strong>{{.Date}}</strong></li>
  <li>Hora: <strong>{{.Time}}</strong></li>
  {{if .Topic}}<li>Trámite: {{.Topic}}</li>{{end}}
</ul>
<p>El día de la cita, acceda a la videollamada desde este enlace:<br>
<a href="{{.VideoURL}}">{{.VideoURL}}</a></p>
{{if .UploadsURL}}<p>Puede aportar documentación antes de la cita en la carpeta de entrega:<br>
<a href="{{.UploadsURL}}">{{.UploadsURL}}</a></p>{{end}}
{{if .DownloadsURL}}<p>La documentación que le entreguemos quedará disponible en:<br>
<a href="{{.DownloadsURL}}">{{.DownloadsURL}}</a></p>{{end}}
{{if .Password}}<p>Contraseña de acceso a las carpetas: <strong>{{.Password}}</strong></p>{{end}}
<p>{{.DepartmentName}}<br>
{{.Address}} {{.Zip}}<br>
{{.DepartmentPhone}}</p>
`

// mailData son los campos disponibles para las plantillas de correo.
type mailData struct {
	DepartmentName  string
	Address         string
	Zip             string
	DepartmentPhone string
	Date            string
	Time            string
	ExternalID      string
	VideoURL        string
	UploadsURL      string
	DownloadsURL    string
	Password        string
	Topic           string
}

// mailBody compone el cuerpo del correo de convocatoria. Si el directorio de
// plantillas contiene {departamento}.tmpl se usa esa; si no, default.tmpl; en
// último término la plantilla incorporada.
func (s *Service) mailBody(ap *Appointment, password string) (string, error) {
	settings := s.cfg.GroupSettings(ap.Department)
	data := mailData{
		DepartmentName:  settings.FullName,
		Address:         settings.Address,
		Zip:             settings.Zip,
		DepartmentPhone: settings.Phone,
		Date:            ap.DateAsString(s.cfg.DateFormat, s.cfg.Timezone),
		Time:            ap.DateAsString(s.cfg.TimeFormat, s.cfg.Timezone),
		ExternalID:      ap.ExternalID,
		VideoURL:        ap.CitizenRoomURL,
		UploadsURL:      ap.SharedURLUploads,
		DownloadsURL:    ap.SharedURLDownloads,
		Password:        password,
		Topic:           ap.Topic,
	}

	tmpl, err := s.mailTemplate(ap.Department)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) mailTemplate(department string) (*template.Template, error) {
	if s.cfg.MailTemplateDir != "" {
		for _, name := range []string{department + ".tmpl", "default.tmpl"} {
			path := filepath.Join(s.cfg.MailTemplateDir, name)
			if _, err := os.Stat(path); err == nil {
				return template.ParseFiles(path)
			}
		}
	}
	return template.New("mail").Parse(defaultMailTemplate)
}

// readmeContent genera el contenido del Readme.md que ve el personal en la
// carpeta de la cita: enlace de videollamada con seguimiento y grabación,
// datos de contacto y fecha.
func (s *Service) readmeContent(ap *Appointment) string {
	var sb strings.Builder

	sb.WriteString("## [Videollamada](" + ap.StaffRoomURL + "#config.followMe=true&config.autoStartRecording=true)\n")

	if len(ap.Phone) > 3 {
		if s.cfg.PhoneLink != "" {
			sb.WriteString(fmt.Sprintf(" [%s](%s:%s%s)", ap.Phone, s.cfg.PhoneLink, s.cfg.PhonePrefix, ap.Phone))
		} else {
			sb.WriteString(" [" + ap.Phone + "]")
		}
	}

	sb.WriteString(" [" + ap.Email + "](mailto:" + ap.Email + ")\n\n")

	if form := s.cfg.GroupConfirmationForm(ap.Department); form != "" {
		sb.WriteString(" [Formulario de la cita](" + form + ")\n\n")
	}

	sb.WriteString(" " + ap.Name + " - " + ap.CitizenID + "\n\n")
	sb.WriteString(" Fecha: " + ap.DateAsString(s.cfg.DateFormat+" "+s.cfg.TimeFormat, s.cfg.Timezone) + "\n\n### \n")

	return sb.String()
}
