package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config agrupa la configuración de la aplicación (lectura vía Viper
// desde variables de entorno y opcionalmente archivo .env).
type Config struct {
	App     AppConfig
	DB      DBConfig
	JWT     JWTConfig
	HTTP    HTTPConfig
	Billing BillingConfig
	AEAT    AEATConfig
}

// AppConfig configuración general de la aplicación.
type AppConfig struct {
	Env      string // development, staging, production
	Name     string
	LogLevel string
}

// DBConfig configuración de PostgreSQL.
// Si DatabaseURL no está vacío se usa como connection string completo.
type DBConfig struct {
	DatabaseURL string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
}

// ConnectionString devuelve el DSN a usar: DATABASE_URL si está definido,
// si no el construido con DSN().
func (c DBConfig) ConnectionString() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return c.DSN()
}

// DSN construye el connection string de PostgreSQL con URL encoding para
// caracteres especiales en la contraseña.
func (c DBConfig) DSN() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: fmt.Sprintf("sslmode=%s", c.SSLMode),
	}
	return u.String()
}

// JWTConfig configuración de validación de tokens.
type JWTConfig struct {
	Secret string
	Issuer string
}

// HTTPConfig configuración del servidor HTTP.
type HTTPConfig struct {
	Host string
	Port int
}

// Addr devuelve la dirección de escucha (host:port).
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BillingConfig parámetros de numeración y cadena de huellas.
type BillingConfig struct {
	IssuerNIF       string // NIF del emisor, entra en la cadena de cada huella
	SequenceRetries int    // reintentos de finalización ante conflicto de secuencia
}

// AEATConfig parámetros del envío VERI*FACTU.
type AEATConfig struct {
	Env          string        // test, production, development (simulado)
	PollInterval time.Duration // frecuencia de sondeo de la cola de envíos
	BaseDelay    time.Duration // base del backoff exponencial entre reintentos
	MaxAttempts  int           // intentos antes de marcar FAILED_PERMANENTLY
}

// Load lee la configuración desde variables de entorno (y opcionalmente
// desde un archivo .env en el directorio de trabajo). Las env vars tienen
// prioridad. Nombres esperados: APP_ENV, DB_HOST, JWT_SECRET, AEAT_ENV, etc.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // ignoramos error si no existe

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		App: AppConfig{
			Env:      getString(v, "APP_ENV", "development"),
			Name:     getString(v, "APP_NAME", "facturacion-pro"),
			LogLevel: getString(v, "APP_LOG_LEVEL", "info"),
		},
		DB: DBConfig{
			DatabaseURL: getString(v, "DATABASE_URL", ""),
			Host:        getString(v, "DB_HOST", "localhost"),
			Port:        v.GetInt("DB_PORT"),
			User:        getString(v, "DB_USER", "postgres"),
			Password:    getString(v, "DB_PASSWORD", ""),
			DBName:      getString(v, "DB_NAME", "facturacion_pro"),
			SSLMode:     getString(v, "DB_SSLMODE", "disable"),
		},
		JWT: JWTConfig{
			Secret: getString(v, "JWT_SECRET", ""),
			Issuer: getString(v, "JWT_ISSUER", "facturacion-pro"),
		},
		HTTP: HTTPConfig{
			Host: getString(v, "HTTP_HOST", "0.0.0.0"),
			Port: getInt(v, "HTTP_PORT", 8080),
		},
		Billing: BillingConfig{
			IssuerNIF:       getString(v, "BILLING_ISSUER_NIF", ""),
			SequenceRetries: getInt(v, "BILLING_SEQUENCE_RETRIES", 3),
		},
		AEAT: AEATConfig{
			Env:          getString(v, "AEAT_ENV", "development"),
			PollInterval: getDuration(v, "AEAT_POLL_INTERVAL", 2*time.Second),
			BaseDelay:    getDuration(v, "AEAT_RETRY_BASE_DELAY", 5*time.Second),
			MaxAttempts:  getInt(v, "AEAT_MAX_ATTEMPTS", 5),
		},
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}

	return cfg, nil
}

func getString(v *viper.Viper, key, def string) string {
	if v.IsSet(key) {
		return v.GetString(key)
	}
	return def
}

func getInt(v *viper.Viper, key string, def int) int {
	if v.IsSet(key) {
		return v.GetInt(key)
	}
	return def
}

func getDuration(v *viper.Viper, key string, def time.Duration) time.Duration {
	if v.IsSet(key) {
		if d := v.GetDuration(key); d > 0 {
			return d
		}
	}
	return def
}
