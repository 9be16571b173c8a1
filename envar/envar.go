package envar

import "os"

const (
	OpencamVerbose = "OPENCAM_VERBOSE"
	OpencamConfig  = "OPENCAM_CONFIG"
)

func Getenv(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}
