package config

// EnvPrefix is passed to envconfig; individual fields carry explicit names.
const EnvPrefix = "littlewears"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "LITTLEWEARS_DB_DSN"
	EnvDBHost = "LITTLEWEARS_DB_HOST"
	EnvDBUser = "LITTLEWEARS_DB_USER"
	EnvDBName = "LITTLEWEARS_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
