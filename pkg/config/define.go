/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package config

// Environment keys. Everything is flat env-style; viper's AutomaticEnv
// resolves each constant against the process environment.
const (
	// core
	workDir       = "WORK_DIR"
	serverPort    = "WEB_SERVER_PORT"
	maxUploadMB   = "MAX_UPLOAD_MB"
	cutMergeGap   = "CUT_MERGE_GAP"
	dbTimeoutSecs = "WEB_DB_TIMEOUT_SECONDS"

	// worker
	workerPollSeconds = "WORKER_POLL_SECONDS"
	embeddedWorker    = "WEB_EMBEDDED_WORKER"

	// cleanup
	cleanupEnabled         = "WEB_CLEANUP_ENABLED"
	cleanupIntervalSeconds = "WEB_CLEANUP_INTERVAL_SECONDS"
	cleanupTTLSeconds      = "WEB_CLEANUP_TTL_SECONDS"
	cleanupBatchSize       = "WEB_CLEANUP_BATCH_SIZE"
	cleanupOnDownload      = "WEB_CLEANUP_ON_DOWNLOAD"
	cleanupOnStartup       = "WEB_CLEANUP_ON_STARTUP"

	// auth
	authEnabled          = "WEB_AUTH_ENABLED"
	authJwksURL          = "WEB_AUTH_JWKS_URL"
	authIssuer           = "WEB_AUTH_ISSUER"
	authAudience         = "WEB_AUTH_AUDIENCE"
	authJwtLeewaySeconds = "WEB_AUTH_JWT_LEEWAY_SECONDS"

	// relational store
	dbLocalOnly           = "WEB_DB_LOCAL_ONLY"
	dbPath                = "WEB_DB_PATH"
	tursoDatabaseURL      = "TURSO_DATABASE_URL"
	tursoAuthToken        = "TURSO_AUTH_TOKEN"
	tursoSyncInterval     = "TURSO_SYNC_INTERVAL"
	tursoLocalReplicaPath = "TURSO_LOCAL_REPLICA_PATH"

	// coupon code sheet (legacy CSV source)
	couponSheetLocalCSV     = "COUPON_CODE_SHEET_LOCAL_CSV"
	couponSheetCSVURL       = "COUPON_CODE_SHEET_CSV_URL"
	couponSheetCacheSeconds = "COUPON_CODE_SHEET_CACHE_SECONDS"

	// object storage
	ossEndpoint             = "OSS_ENDPOINT"
	ossBucket               = "OSS_BUCKET"
	ossAccessKeyID          = "OSS_ACCESS_KEY_ID"
	ossAccessKeySecret      = "OSS_ACCESS_KEY_SECRET"
	ossAudioPrefix          = "OSS_AUDIO_PREFIX"
	ossSignedURLTTLSeconds  = "OSS_SIGNED_URL_TTL_SECONDS"

	// cors
	corsAllowOrigins = "WEB_CORS_ALLOW_ORIGINS"
	corsAllowHeaders = "WEB_CORS_ALLOW_HEADERS"
	corsAllowMethods = "WEB_CORS_ALLOW_METHODS"

	// stage driver commands
	pipelineTranscribeCmd = "PIPELINE_TRANSCRIBE_CMD"
	pipelineAutoEditCmd   = "PIPELINE_AUTOEDIT_CMD"
	pipelineTopicsCmd     = "PIPELINE_TOPICS_CMD"
)
