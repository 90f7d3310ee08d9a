package config

// EnvPrefix is passed to envconfig; individual fields carry fully qualified
// names so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "MEDIMART_DB_DSN"
	EnvDBHost = "MEDIMART_DB_HOST"
	EnvDBUser = "MEDIMART_DB_USER"
	EnvDBName = "MEDIMART_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
