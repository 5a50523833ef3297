package claimsync

const (
	Env_ApiTimeoutMs  = "CLAIM_API_TIMEOUT_MS"
	Env_ApiToken      = "CLAIM_API_TOKEN"
	Env_ApiUrl        = "CLAIM_API_URL"
	Env_AwsAccountId  = "AWS_ACCOUNT_ID"
	Env_AwsEndpoint   = "AWS_ENDPOINT"
	Env_AwsRegion     = "AWS_REGION"
	Env_Branch        = "BRANCH"
	Env_DbPath        = "CLAIM_DB_PATH"
	Env_Env           = "ENV"
	Env_EnvTag        = "ENV_TAG"
	Env_LogLevel      = "LOG_LEVEL"
	Env_MaxActionAge  = "QUEUE_MAX_ACTION_AGE"
	Env_ProbeInterval = "CONNECTIVITY_PROBE_INTERVAL"
	Env_Sha           = "SHA"
	Env_ShaTag        = "SHA_TAG"
	Env_StoreBackend  = "CLAIM_STORE_BACKEND"
	Env_ViewerId      = "CLAIM_VIEWER_ID"
)

const (
	EnvTag_Dev     = "dev"
	EnvTag_Qa      = "qa"
	EnvTag_Staging = "staging"
	EnvTag_Prod    = "prod"
)

const (
	StoreBackend_Sqlite = "sqlite"
	StoreBackend_Memory = "memory"
	StoreBackend_Ddb    = "dynamodb"
	StoreBackend_S3     = "s3"
)
