package common

import "time"

const DefaultRpcWaitTime = 30 * time.Second

const ServiceName = "claimsync-agent"

const Env_MetricsEndpoint = "OTEL_EXPORTER_OTLP_METRICS_ENDPOINT"
