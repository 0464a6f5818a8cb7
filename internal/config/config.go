package config

import (
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza la configuración cargada del entorno.
type Config struct {
	Port         int
	DBDSN        string
	RedisURL     string
	JWTSecret    string
	AllowOrigins []string
	CronToken    string

	// Zona horaria usada para decidir si una cita "es de hoy".
	Timezone *time.Location

	// Departamentos (grupos del directorio) habilitados para el módulo.
	Departments []string
	// Grupos cuyos miembros pueden asignar citas a otros usuarios.
	GroupLimit []string

	DepartmentSettings map[string]DepartmentSettings

	MailsAllowed    bool
	StaffVideoURL   string
	CitizenVideoURL string

	FolderUploads   string
	FolderDownloads string
	AdminUser       string

	AnonymousDomain string
	PhoneLink       string
	PhonePrefix     string
	DateFormat      string
	TimeFormat      string

	PurgeAge          time.Duration
	PurgeCompletedAge time.Duration

	Nextcloud NextcloudConfig

	SlackWebhookURL string

	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig

	MailTemplateDir string
}

// NextcloudConfig agrupa las credenciales del almacén documental.
type NextcloudConfig struct {
	BaseURL  string
	Username string
	Password string
}

// RateLimitConfig representa límites simples de throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// DepartmentSettings recoge los ajustes por departamento (asunto del correo,
// datos de la oficina, formulario de confirmación de videollamada).
type DepartmentSettings struct {
	FullName         string `json:"fullname"`
	Address          string `json:"address"`
	Zip              string `json:"cp"`
	Phone            string `json:"phone"`
	MailSubject      string `json:"subject"`
	ConfirmationForm string `json:"vc_confirmation"`
}

// Load carga variables de entorno y aplica valores por defecto seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	portStr := getEnv("PORT", "8080")
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválido")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obligatorio")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET debe tener al menos 32 caracteres")
	}
	cfg.CronToken = strings.TrimSpace(getEnv("CRON_TOKEN", ""))

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", ""))

	tzName := getEnv("VTRAMIT_TIMEZONE", "Europe/Madrid")
	loc, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, errors.New("VTRAMIT_TIMEZONE inválida: " + tzName)
	}
	cfg.Timezone = loc

	cfg.Departments = splitList(getEnv("VTRAMIT_GROUPS", ""))
	cfg.GroupLimit = splitList(getEnv("VTRAMIT_GROUP_LIMIT", ""))

	settings, err := parseDepartmentSettings(getEnv("VTRAMIT_GROUP_SETTINGS", ""))
	if err != nil {
		return nil, err
	}
	cfg.DepartmentSettings = settings

	cfg.MailsAllowed = parseBoolEnv("VTRAMIT_MAILS_ALLOWED", true)
	cfg.StaffVideoURL = strings.TrimRight(getEnv("VTRAMIT_STAFF_VIDEO_URL", ""), "/")
	cfg.CitizenVideoURL = strings.TrimRight(getEnv("VTRAMIT_CITIZEN_VIDEO_URL", ""), "/")

	cfg.FolderUploads = getEnv("VTRAMIT_FOLDER_UPLOADS", "Entrada")
	cfg.FolderDownloads = getEnv("VTRAMIT_FOLDER_DOWNLOADS", "Sortida")
	cfg.AdminUser = getEnv("VTRAMIT_ADMIN_USER", "admin")

	cfg.AnonymousDomain = getEnv("VTRAMIT_ANON_DOMAIN", "anonymous.com")
	cfg.PhoneLink = getEnv("VTRAMIT_PHONE_LINK", "ciscotel")
	cfg.PhonePrefix = getEnv("VTRAMIT_PHONE_PREFIX", "+34")
	cfg.DateFormat = getEnv("VTRAMIT_DATE_FORMAT", "02/01/2006")
	cfg.TimeFormat = getEnv("VTRAMIT_TIME_FORMAT", "15:04")

	purgeAge, err := parseDurationEnv("VTRAMIT_PURGE_AGE", 72*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.PurgeAge = purgeAge

	purgeCompleted, err := parseDurationEnv("VTRAMIT_PURGE_COMPLETED_AGE", 24*time.Hour)
	if err != nil {
		return nil, err
	}
	cfg.PurgeCompletedAge = purgeCompleted

	cfg.Nextcloud = NextcloudConfig{
		BaseURL:  strings.TrimRight(getEnv("NEXTCLOUD_BASE_URL", ""), "/"),
		Username: getEnv("NEXTCLOUD_USER", ""),
		Password: getEnv("NEXTCLOUD_PASSWORD", ""),
	}

	cfg.SlackWebhookURL = getEnv("SLACK_WEBHOOK_URL", "")

	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 10, Burst: 40}

	cfg.MailTemplateDir = getEnv("VTRAMIT_MAIL_TEMPLATE_DIR", "")

	return cfg, nil
}

// GroupSettings devuelve los ajustes del departamento combinados con los
// ajustes por defecto ("default").
func (c *Config) GroupSettings(department string) DepartmentSettings {
	merged := c.DepartmentSettings["default"]
	if specific, ok := c.DepartmentSettings[department]; ok {
		if specific.FullName != "" {
			merged.FullName = specific.FullName
		}
		if specific.Address != "" {
			merged.Address = specific.Address
		}
		if specific.Zip != "" {
			merged.Zip = specific.Zip
		}
		if specific.Phone != "" {
			merged.Phone = specific.Phone
		}
		if specific.MailSubject != "" {
			merged.MailSubject = specific.MailSubject
		}
		if specific.ConfirmationForm != "" {
			merged.ConfirmationForm = specific.ConfirmationForm
		}
	}
	return merged
}

// GroupMailSubject devuelve el asunto de correo configurado para el
// departamento.
func (c *Config) GroupMailSubject(department string) string {
	return c.GroupSettings(department).MailSubject
}

// GroupConfirmationForm devuelve la URL del formulario de confirmación de
// videollamada del departamento, si existe.
func (c *Config) GroupConfirmationForm(department string) string {
	return c.GroupSettings(department).ConfirmationForm
}

// IsConfiguredDepartment indica si el departamento está habilitado.
func (c *Config) IsConfiguredDepartment(department string) bool {
	for _, d := range c.Departments {
		if d == department {
			return true
		}
	}
	return false
}

func parseDepartmentSettings(raw string) (map[string]DepartmentSettings, error) {
	settings := map[string]DepartmentSettings{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return settings, nil
	}
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, errors.New("VTRAMIT_GROUP_SETTINGS no es JSON válido")
	}
	return settings, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseBoolEnv(key string, def bool) bool {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}
