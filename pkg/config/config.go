/*
 * Copyright (c) 2025, the video-auto-cut authors. All rights reserved.
 * See LICENSE for license information.
 */

package config

import (
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

func init() {
	viper.AutomaticEnv()
}

// SetValue overrides a key in-process; tests and the server bootstrap
// use it instead of mutating the environment.
func SetValue(key string, value interface{}) {
	viper.Set(key, value)
}

func getString(key, defaultValue string) string {
	val := strings.TrimSpace(viper.GetString(key))
	if val == "" {
		return defaultValue
	}
	return val
}

func getBool(key string, defaultValue bool) bool {
	val := strings.ToLower(strings.TrimSpace(viper.GetString(key)))
	switch val {
	case "":
		return defaultValue
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func getInt(key string, defaultValue int) int {
	val := strings.TrimSpace(viper.GetString(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getFloat(key string, defaultValue float64) float64 {
	val := strings.TrimSpace(viper.GetString(key))
	if val == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func getStrings(key string, defaultValue []string) []string {
	val := viper.GetString(key)
	var result []string
	for _, item := range strings.Split(val, ",") {
		if trim := strings.TrimSpace(item); trim != "" {
			result = append(result, trim)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

func GetWorkDir() string {
	dir := getString(workDir, "./workdir")
	abs, err := filepath.Abs(dir)
	if err != nil {
		return dir
	}
	return abs
}

func GetServerPort() int {
	return getInt(serverPort, 8000)
}

func GetMaxUploadMB() int {
	return getInt(maxUploadMB, 2048)
}

func GetCutMergeGap() float64 {
	return getFloat(cutMergeGap, 0.0)
}

func GetDBRequestTimeout() time.Duration {
	return time.Duration(getInt(dbTimeoutSecs, 30)) * time.Second
}

func GetWorkerPollInterval() time.Duration {
	return time.Duration(getFloat(workerPollSeconds, 1.0) * float64(time.Second))
}

func IsEmbeddedWorkerEnabled() bool {
	return getBool(embeddedWorker, false)
}

func IsCleanupEnabled() bool {
	return getBool(cleanupEnabled, true)
}

func GetCleanupInterval() time.Duration {
	secs := getFloat(cleanupIntervalSeconds, 300)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs * float64(time.Second))
}

func GetCleanupTTL() time.Duration {
	secs := getInt(cleanupTTLSeconds, 3600)
	if secs < 0 {
		secs = 0
	}
	return time.Duration(secs) * time.Second
}

func GetCleanupBatchSize() int {
	size := getInt(cleanupBatchSize, 10)
	if size < 1 {
		size = 1
	}
	return size
}

func IsCleanupOnDownload() bool {
	return getBool(cleanupOnDownload, true)
}

func IsCleanupOnStartup() bool {
	return getBool(cleanupOnStartup, false)
}

func IsAuthEnabled() bool {
	return getBool(authEnabled, false)
}

func GetAuthJwksURL() string {
	return getString(authJwksURL, "")
}

func GetAuthIssuer() string {
	return getString(authIssuer, "")
}

func GetAuthAudience() string {
	return getString(authAudience, "")
}

func GetAuthJwtLeeway() time.Duration {
	return time.Duration(getInt(authJwtLeewaySeconds, 60)) * time.Second
}

func IsDBLocalOnly() bool {
	if getBool(dbLocalOnly, false) {
		return true
	}
	return GetTursoDatabaseURL() == "" || GetTursoAuthToken() == ""
}

func GetDBPath() string {
	return getString(dbPath, filepath.Join(GetWorkDir(), "web_api.sqlite3"))
}

func GetTursoDatabaseURL() string {
	return getString(tursoDatabaseURL, "")
}

func GetTursoAuthToken() string {
	return getString(tursoAuthToken, "")
}

func GetTursoSyncInterval() time.Duration {
	return time.Duration(getInt(tursoSyncInterval, 0)) * time.Second
}

func GetTursoLocalReplicaPath() string {
	return getString(tursoLocalReplicaPath, filepath.Join(GetWorkDir(), "replica.sqlite3"))
}

// GetCouponSheetSource prefers the local CSV path, then the URL.
func GetCouponSheetSource() string {
	if local := getString(couponSheetLocalCSV, ""); local != "" {
		return local
	}
	return getString(couponSheetCSVURL, "")
}

func GetCouponSheetCacheTTL() time.Duration {
	secs := getInt(couponSheetCacheSeconds, 300)
	if secs < 5 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}

func GetOSSEndpoint() string {
	return getString(ossEndpoint, "")
}

func GetOSSBucket() string {
	return getString(ossBucket, "")
}

func GetOSSAccessKeyID() string {
	return getString(ossAccessKeyID, "")
}

func GetOSSAccessKeySecret() string {
	return getString(ossAccessKeySecret, "")
}

func GetOSSAudioPrefix() string {
	prefix := strings.Trim(getString(ossAudioPrefix, "video-auto-cut/asr"), "/")
	if prefix == "" {
		prefix = "video-auto-cut/asr"
	}
	return prefix
}

func GetOSSSignedURLTTL() time.Duration {
	secs := getInt(ossSignedURLTTLSeconds, 3600)
	if secs < 1 {
		secs = 1
	}
	return time.Duration(secs) * time.Second
}

func GetCORSAllowOrigins() []string {
	return getStrings(corsAllowOrigins, []string{"*"})
}

func GetCORSAllowHeaders() []string {
	return getStrings(corsAllowHeaders, []string{"Authorization", "Content-Type"})
}

func GetCORSAllowMethods() []string {
	return getStrings(corsAllowMethods, []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
}

func GetTranscribeCommand() []string {
	return getStrings(pipelineTranscribeCmd, nil)
}

func GetAutoEditCommand() []string {
	return getStrings(pipelineAutoEditCmd, nil)
}

func GetTopicsCommand() []string {
	return getStrings(pipelineTopicsCmd, nil)
}
