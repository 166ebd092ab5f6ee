package batchrow

import "time"

const (
	defaultAppName     = "batchrow"
	defaultAppVersion  = "dev"
	defaultConfigDir   = "./configs"
	defaultMetricsPort = 2121
	defaultTracerRatio = 1.0
	defaultZipkinURL   = "http://localhost:9411/api/v2/spans"
	defaultOTLPURL     = "localhost:4317"
	shutDownTimeout    = 30 * time.Second
)
