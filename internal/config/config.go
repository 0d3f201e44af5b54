package config

import "time"

type Config struct {
	BaseURL  string
	HttpPort int
	Db       struct {
		Dsn         string
		Automigrate bool
	}
	Jwt struct {
		SecretKey string
	}
	Paystack struct {
		BaseURL       string
		SecretKey     string
		WebhookSecret string
		Timeout       time.Duration
	}
	ApiKeys struct {
		MaxPerUser int
	}
	Pagination struct {
		MaxPageSize int
	}
	Notifications struct {
		Email string
	}
	Smtp struct {
		Host     string
		Port     int
		Username string
		Password string
		From     string
	}
	Redis struct {
		Addr string
		Db   int
	}
	KafkaServers string
}
