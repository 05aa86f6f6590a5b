package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT session tokens
	JWTSecret       string
	JWTAccessExpiry time.Duration

	// OTP lifecycle
	OTPExpiry    time.Duration
	ResendMax    int
	ResendWindow time.Duration

	// Mail delivery
	MailTransport string // "smtp", "kafka" or "log"
	MailFrom      string
	MailFromName  string
	MailTimeout   time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPUser     string
	SMTPPassword string

	KafkaBroker    string
	KafkaMailTopic string

	// Redis (resend throttling; empty addr disables it)
	RedisAddr     string
	RedisPassword string

	// Cloudinary (avatar uploads; empty URL disables the endpoint)
	CloudinaryURL    string
	CloudinaryFolder string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	// Local development convenience; a missing .env is fine.
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "materna_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:       getEnv("JWT_SECRET", ""),
		JWTAccessExpiry: parseDuration(getEnv("JWT_ACCESS_EXPIRY", "23h"), 23*time.Hour),

		OTPExpiry:    parseDuration(getEnv("OTP_EXPIRY", "15m"), 15*time.Minute),
		ResendMax:    parseInt(getEnv("OTP_RESEND_MAX", "3"), 3),
		ResendWindow: parseDuration(getEnv("OTP_RESEND_WINDOW", "15m"), 15*time.Minute),

		MailTransport: getEnv("MAIL_TRANSPORT", "log"),
		MailFrom:      getEnv("MAIL_FROM", "no-reply@materna.health"),
		MailFromName:  getEnv("MAIL_FROM_NAME", "Materna"),
		MailTimeout:   parseDuration(getEnv("MAIL_TIMEOUT", "10s"), 10*time.Second),

		SMTPHost:     getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:     getEnv("SMTP_PORT", "587"),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		KafkaBroker:    getEnv("KAFKA_BROKER", ""),
		KafkaMailTopic: getEnv("KAFKA_MAIL_TOPIC", "materna.mail"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		CloudinaryURL:    getEnv("CLOUDINARY_URL", ""),
		CloudinaryFolder: getEnv("CLOUDINARY_FOLDER", "materna/avatars"),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
