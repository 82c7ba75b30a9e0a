package config

const (
	EnvPrefix = "STOREFRONT"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv            = "STOREFRONT_APP_ENV"
	EnvPort              = "STOREFRONT_APP_PORT"
	EnvDBDriver          = "STOREFRONT_DB_DRIVER"
	EnvDBDSN             = "STOREFRONT_DB_DSN"
	EnvDBHost            = "STOREFRONT_DB_HOST"
	EnvDBUser            = "STOREFRONT_DB_USER"
	EnvDBName            = "STOREFRONT_DB_NAME"
	EnvRedisURL          = "STOREFRONT_REDIS_URL"
	EnvJWTSecret         = "STOREFRONT_JWT_SECRET"
	EnvJWTIssuer         = "STOREFRONT_JWT_ISSUER"
	EnvCommerceBaseURL   = "STOREFRONT_COMMERCE_BASE_URL"
	EnvGatewayBaseURL    = "STOREFRONT_GATEWAY_BASE_URL"
	EnvGatewayPublicKey  = "STOREFRONT_GATEWAY_PUBLIC_KEY"
	EnvGCPProjectID      = "STOREFRONT_GCP_PROJECT_ID"
	EnvPubSubCheckoutTop = "STOREFRONT_PUBSUB_CHECKOUT_TOPIC"

	EnvCheckoutPostalCodeLength = "STOREFRONT_CHECKOUT_POSTAL_CODE_LENGTH"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
