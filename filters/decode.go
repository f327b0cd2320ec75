package filters

import "github.com/kbukum/watchtower-sentry/config"

// decodeParams is a thin wrapper around config.Decode so every Build
// function in this package shares one spelling for "turn my raw param map
// into my typed Params struct".
func decodeParams[T any](params map[string]interface{}) (*T, error) {
	return config.Decode[T](params)
}
